package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/query"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/eventstore/fixtures"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/postgresengine/postgreswrapper"
)

const benchmarkFixtureCustomers = 1000

type benchmarkHarness struct {
	tracker *tracker.EventTracker
	queries *query.Engine
}

func givenBenchmarkHarness(b *testing.B, wrapper postgreswrapper.Wrapper) benchmarkHarness {
	b.Helper()

	ctx := context.Background()
	es := wrapper.GetEventStore()

	registry, err := schemaregistry.NewRegistry(es, schemaregistry.WithCache(schemaregistry.NewMemoryCache()))
	require.NoError(b, err)

	_, err = registry.AddSchema(ctx, fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV2)
	require.NoError(b, err)

	eventTracker, err := tracker.NewEventTracker(registry, validation.NewJSONSchemaValidator(), es.TransactionManager())
	require.NoError(b, err)

	queries, err := query.NewEngine(es)
	require.NoError(b, err)

	for i := 0; i < benchmarkFixtureCustomers; i++ {
		city := "Hamburg"
		if i%10 == 0 {
			city = "Berlin"
		}

		require.NoError(b, eventTracker.TrackEvent(ctx, customerCreated(fixtures.FakeActiveCustomer(city))))
	}

	return benchmarkHarness{tracker: eventTracker, queries: queries}
}

func customerCreated(customer fixtures.Customer) tracker.TrackEventRequest {
	return tracker.TrackEventRequest{
		EntityType: fixtures.EntityTypeCustomer,
		EntityID:   customer.ID,
		EventType:  eventstore.EventTypeCreated,
		ActorID:    "benchmark",
		ActorType:  eventstore.ActorTypeSystem,
		EntityData: customer,
	}
}

func Benchmark_TrackEvent_With_Many_Events_InTheStore(b *testing.B) {
	for _, wrapper := range postgreswrapper.CreateWrappers(b) {
		// setup
		h := givenBenchmarkHarness(b, wrapper)

		b.Run(wrapper.Name(), func(b *testing.B) {
			ctx := context.Background()

			var trackTime time.Duration

			// act
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				request := customerCreated(fixtures.FakeActiveCustomer("Munich"))
				b.StartTimer()

				start := time.Now()
				err := h.tracker.TrackEvent(ctx, request)
				trackTime += time.Since(start)

				b.StopTimer()
				require.NoError(b, err)
				b.StartTimer()
			}

			b.ReportMetric(float64(trackTime.Microseconds())/1000.0/float64(b.N), "ms/track-op")
		})
	}
}

func Benchmark_SearchEvents_With_Many_Events_InTheStore(b *testing.B) {
	for _, wrapper := range postgreswrapper.CreateWrappers(b) {
		// setup
		h := givenBenchmarkHarness(b, wrapper)

		b.Run(wrapper.Name(), func(b *testing.B) {
			ctx := context.Background()
			request := eventstore.BuildSearchFilter(fixtures.EntityTypeCustomer).
				Matching(eventstore.P("Email", "*@example.com"), eventstore.P("Address.City", "Berlin")).
				Limit(20).
				Finalize()

			// act
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				responses, err := h.queries.SearchEvents(ctx, request)

				b.StopTimer()
				require.NoError(b, err)
				require.NotEmpty(b, responses)
				b.StartTimer()
			}
		})
	}
}
