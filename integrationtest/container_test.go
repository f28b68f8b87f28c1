package integrationtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mongofeed/go-mongofeed/message"
	"github.com/mongofeed/go-mongofeed/subscription"
	"github.com/mongofeed/go-mongofeed/zaplogger"
)

type person struct {
	ID        string `bson:"_id"`
	Firstname string `bson:"firstname"`
	Age       int    `bson:"age,omitempty"`
}

func TestSubscriptionContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite.Run(t, new(ContainerSuite))
}

type ContainerSuite struct {
	suite.Suite

	mongo     *tcmongodb.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database
	container *subscription.Container

	collectionSeq int
}

func (s *ContainerSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcmongodb.Run(ctx, "mongo:7", tcmongodb.WithReplicaSet("rs0"))
	s.Require().NoError(err)
	s.mongo = container

	uri, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(uri))
	s.Require().NoError(err)

	s.client = client
	s.db = client.Database("feed")
}

func (s *ContainerSuite) TearDownSuite() {
	ctx := context.Background()

	if s.client != nil {
		s.Require().NoError(s.client.Disconnect(ctx))
	}

	if s.mongo != nil {
		s.Require().NoError(s.mongo.Terminate(ctx))
	}
}

func (s *ContainerSuite) SetupTest() {
	log, err := zap.NewDevelopment()
	s.Require().NoError(err)

	container, err := subscription.NewContainer(subscription.ContainerConfig{
		Database: subscription.WrapDatabase(s.db),
		Logger:   zaplogger.Wrap(log),
	})
	s.Require().NoError(err)

	s.container = container
}

func (s *ContainerSuite) TearDownTest() {
	s.container.Stop()
}

// newCollection hands out a collection name unused by previous tests,
// so change streams never observe another scenario's writes.
func (s *ContainerSuite) newCollection() string {
	s.collectionSeq++
	return fmt.Sprintf("col-%d", s.collectionSeq)
}

func (s *ContainerSuite) newCappedCollection() string {
	name := s.newCollection()

	err := s.db.CreateCollection(context.Background(), name,
		mongooptions.CreateCollection().SetCapped(true).SetSizeInBytes(1024*1024),
	)
	s.Require().NoError(err)

	return name
}

func (s *ContainerSuite) insert(collection string, doc interface{}) {
	_, err := s.db.Collection(collection).InsertOne(context.Background(), doc)
	s.Require().NoError(err)
}

func awaitActive(t *testing.T, sub *subscription.Subscription) {
	t.Helper()

	require.Eventually(t, sub.IsActive, 10*time.Second, 10*time.Millisecond, "subscription did not become active")
}

func receive[T any](t *testing.T, ch <-chan T, within time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatal("timed out waiting for a message")
		panic("unreachable")
	}
}

func expectSilence[T any](t *testing.T, ch <-chan T, within time.Duration) {
	t.Helper()

	select {
	case <-ch:
		t.Fatal("received a message where none was expected")
	case <-time.After(within):
	}
}

func (s *ContainerSuite) TestTailableCursorDeliversInsertsInOrder() {
	t := s.T()
	collection := s.newCappedCollection()

	received := make(chan bson.Raw, 8)

	request := subscription.NewTailableRequest[bson.Raw](
		subscription.ListenerFunc[bson.Raw, bson.Raw](func(_ context.Context, msg message.Message[bson.Raw, bson.Raw]) error {
			body, err := msg.Body()
			if err != nil {
				return err
			}

			received <- body
			return nil
		}),
		subscription.NewTailableOptionsBuilder().Collection(collection).Build(),
	)

	sub, err := s.container.Register(request)
	s.Require().NoError(err)

	s.container.Start()
	awaitActive(t, sub)

	s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}, {Key: "value", Value: "foo"}})
	s.insert(collection, bson.D{{Key: "_id", Value: "id-2"}, {Key: "value", Value: "bar"}})

	first := receive(t, received, 5*time.Second)
	second := receive(t, received, 5*time.Second)

	s.Equal("id-1", first.Lookup("_id").StringValue())
	s.Equal("foo", first.Lookup("value").StringValue())
	s.Equal("id-2", second.Lookup("_id").StringValue())
	s.Equal("bar", second.Lookup("value").StringValue())

	s.container.Stop()
	expectSilence(t, received, 200*time.Millisecond)
}

func (s *ContainerSuite) TestStopHaltsDelivery() {
	t := s.T()
	collection := s.newCollection()

	received := make(chan bson.Raw, 8)

	request := subscription.NewChangeStreamRequest[bson.Raw](
		subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
			func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
				body, err := msg.Body()
				if err != nil {
					return err
				}

				received <- body
				return nil
			},
		),
		subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
	)

	sub, err := s.container.Register(request)
	s.Require().NoError(err)

	s.container.Start()
	awaitActive(t, sub)

	s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}})
	s.insert(collection, bson.D{{Key: "_id", Value: "id-2"}})

	receive(t, received, 5*time.Second)
	receive(t, received, 5*time.Second)

	s.container.Stop()
	s.False(sub.IsActive())

	s.insert(collection, bson.D{{Key: "_id", Value: "id-3"}})
	expectSilence(t, received, 200*time.Millisecond)
}

func (s *ContainerSuite) TestRegisterAfterStart() {
	t := s.T()
	collection := s.newCollection()

	s.container.Start()

	// Written before the subscription exists; must never be delivered.
	s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}, {Key: "value", Value: "foo"}})

	received := make(chan bson.Raw, 8)

	request := subscription.NewChangeStreamRequest[bson.Raw](
		subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
			func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
				body, err := msg.Body()
				if err != nil {
					return err
				}

				received <- body
				return nil
			},
		),
		subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
	)

	sub, err := s.container.Register(request)
	s.Require().NoError(err)
	awaitActive(t, sub)

	s.insert(collection, bson.D{{Key: "_id", Value: "id-2"}, {Key: "value", Value: "bar"}})

	msg := receive(t, received, 5*time.Second)
	s.Equal("id-2", msg.Lookup("_id").StringValue())
	expectSilence(t, received, 200*time.Millisecond)
}

func (s *ContainerSuite) TestTypedBodyConversion() {
	t := s.T()
	collection := s.newCollection()

	received := make(chan person, 8)

	request := subscription.NewChangeStreamRequest[person](
		subscription.ListenerFunc[*subscription.ChangeEvent, person](
			func(_ context.Context, msg message.Message[*subscription.ChangeEvent, person]) error {
				body, err := msg.Body()
				if err != nil {
					return err
				}

				received <- body
				return nil
			},
		),
		subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
	)

	sub, err := s.container.Register(request)
	s.Require().NoError(err)

	s.container.Start()
	awaitActive(t, sub)

	s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}, {Key: "firstname", Value: "foo"}})

	got := receive(t, received, 5*time.Second)
	s.Equal(person{ID: "id-1", Firstname: "foo"}, got)
}

func (s *ContainerSuite) TestResumeTokenContinuesAfterEvent() {
	t := s.T()
	collection := s.newCollection()

	type event struct {
		token bson.Raw
		body  bson.Raw
	}

	received := make(chan event, 8)

	first := subscription.NewChangeStreamRequest[bson.Raw](
		subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
			func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
				body, err := msg.Body()
				if err != nil {
					return err
				}

				received <- event{token: msg.Raw().ResumeToken, body: body}
				return nil
			},
		),
		subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
	)

	sub, err := s.container.Register(first)
	s.Require().NoError(err)

	s.container.Start()
	awaitActive(t, sub)

	s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}})
	s.insert(collection, bson.D{{Key: "_id", Value: "id-2"}})
	s.insert(collection, bson.D{{Key: "_id", Value: "id-3"}})

	firstEvent := receive(t, received, 5*time.Second)
	receive(t, received, 5*time.Second)
	receive(t, received, 5*time.Second)
	sub.Cancel()

	// A second subscription resuming after the first event sees only
	// the remaining two.
	resumed := make(chan bson.Raw, 8)

	second := subscription.NewChangeStreamRequest[bson.Raw](
		subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
			func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
				body, err := msg.Body()
				if err != nil {
					return err
				}

				resumed <- body
				return nil
			},
		),
		subscription.NewChangeStreamOptionsBuilder().
			Collection(collection).
			ResumeToken(firstEvent.token).
			Build(),
	)

	resumedSub, err := s.container.Register(second)
	s.Require().NoError(err)
	awaitActive(t, resumedSub)

	s.Equal("id-2", receive(t, resumed, 5*time.Second).Lookup("_id").StringValue())
	s.Equal("id-3", receive(t, resumed, 5*time.Second).Lookup("_id").StringValue())
	expectSilence(t, resumed, 200*time.Millisecond)
}

func (s *ContainerSuite) TestUpdateFullDocumentPolicy() {
	t := s.T()

	s.Run("typed target receives the post-image", func() {
		collection := s.newCollection()
		received := make(chan person, 8)

		request := subscription.NewChangeStreamRequest[person](
			subscription.ListenerFunc[*subscription.ChangeEvent, person](
				func(_ context.Context, msg message.Message[*subscription.ChangeEvent, person]) error {
					body, err := msg.Body()
					if err != nil {
						return err
					}

					received <- body
					return nil
				},
			),
			subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
		)

		sub, err := s.container.Register(request)
		s.Require().NoError(err)

		s.container.Start()
		awaitActive(t, sub)

		s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}, {Key: "firstname", Value: "foo"}, {Key: "age", Value: 7}})

		_, err = s.db.Collection(collection).UpdateOne(
			context.Background(),
			bson.D{{Key: "_id", Value: "id-1"}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "age", Value: 8}}}},
		)
		s.Require().NoError(err)

		inserted := receive(t, received, 5*time.Second)
		s.Equal(7, inserted.Age)

		updated := receive(t, received, 5*time.Second)
		s.Equal(8, updated.Age, "typed targets default to update lookup")
	})

	s.Run("generic target with default lookup gets no post-image", func() {
		collection := s.newCollection()
		received := make(chan bson.Raw, 8)

		request := subscription.NewChangeStreamRequest[bson.Raw](
			subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
				func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
					body, err := msg.Body()
					if err != nil {
						return err
					}

					received <- body
					return nil
				},
			),
			subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
		)

		sub, err := s.container.Register(request)
		s.Require().NoError(err)

		s.container.Start()
		awaitActive(t, sub)

		s.insert(collection, bson.D{{Key: "_id", Value: "id-1"}, {Key: "age", Value: 7}})

		_, err = s.db.Collection(collection).UpdateOne(
			context.Background(),
			bson.D{{Key: "_id", Value: "id-1"}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "age", Value: 8}}}},
		)
		s.Require().NoError(err)

		inserted := receive(t, received, 5*time.Second)
		s.NotNil(inserted)

		updated := receive(t, received, 5*time.Second)
		s.Nil(updated, "update events carry no document without full document lookup")
	})
}

func (s *ContainerSuite) TestConcurrentSubscriptionsDoNotInterfere() {
	t := s.T()

	collections := []string{s.newCollection(), s.newCollection(), s.newCollection()}
	channels := make([]chan bson.Raw, len(collections))

	for i, collection := range collections {
		received := make(chan bson.Raw, 8)
		channels[i] = received

		request := subscription.NewChangeStreamRequest[bson.Raw](
			subscription.ListenerFunc[*subscription.ChangeEvent, bson.Raw](
				func(_ context.Context, msg message.Message[*subscription.ChangeEvent, bson.Raw]) error {
					body, err := msg.Body()
					if err != nil {
						return err
					}

					received <- body
					return nil
				},
			),
			subscription.NewChangeStreamOptionsBuilder().Collection(collection).Build(),
		)

		sub, err := s.container.Register(request)
		s.Require().NoError(err)

		s.container.Start()
		awaitActive(t, sub)
	}

	group, _ := errgroup.WithContext(context.Background())

	for _, collection := range collections {
		collection := collection

		group.Go(func() error {
			_, err := s.db.Collection(collection).InsertOne(
				context.Background(),
				bson.D{{Key: "_id", Value: "id-" + collection}},
			)

			return err
		})
	}

	s.Require().NoError(group.Wait())

	for i, collection := range collections {
		got := receive(t, channels[i], 5*time.Second)
		s.Equal("id-"+collection, got.Lookup("_id").StringValue())
	}
}
