package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fiscalclm/clm/internal/bus"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(quiet)
	require.NoError(t, err)
	return engine
}

func publishContract(t *testing.T, b domain.EventBus, tenantID, topic string, c *domain.Contract) {
	t.Helper()
	payload, err := json.Marshal(domain.ContractEvent{
		Action:     "created",
		TenantID:   tenantID,
		TraceID:    "trace-001",
		Contract:   c,
		ContractID: c.ID,
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), tenantID, topic, payload))
}

// collect subscribes to topic and forwards decoded events.
func collect(t *testing.T, b domain.EventBus, tenantID, topic string) <-chan domain.FiscalAlertEvent {
	t.Helper()
	ch := make(chan domain.FiscalAlertEvent, 10)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.FiscalAlertEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		ch <- ev
		return nil
	})
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch <-chan domain.FiscalAlertEvent) domain.FiscalAlertEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return domain.FiscalAlertEvent{}
}

var interstateSale = &domain.Contract{
	ID:               "c-001",
	ContractNumber:   "CT-2024-001",
	PartyName:        "Metalúrgica Horizonte",
	Value:            domain.FromUnits(1_250_000),
	NCM:              "8427.20.10",
	OriginState:      "SP",
	DestinationState: "MG",
	OperationType:    domain.OperationSale,
	Status:           domain.StatusActive,
}

var export = &domain.Contract{
	ID:               "c-002",
	ContractNumber:   "CT-2024-002",
	PartyName:        "Andes Mining",
	Value:            domain.FromUnits(2_100_000),
	NCM:              "8428.90.90",
	OriginState:      "SP",
	DestinationState: domain.OutsideBR,
	OperationType:    domain.OperationExport,
	Status:           domain.StatusActive,
}

func TestWorkerStartStop(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	w := NewWorker(b, newEngine(t), nil, quiet)
	require.NoError(t, w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}}))

	stats := w.GetStats()
	assert.Equal(t, 4, stats.SubscriptionCount)
	assert.ElementsMatch(t, []string{
		domain.TopicContractCreated, domain.TopicContractUpdated,
		domain.TopicContractCreated, domain.TopicContractUpdated,
	}, stats.Topics)

	require.NoError(t, w.Stop())
	assert.Equal(t, 0, w.GetStats().SubscriptionCount)
}

func TestWorkerStartFailsWithoutSubscriptions(t *testing.T) {
	b := bus.NewChannelBus(10)
	require.NoError(t, b.Close())

	w := NewWorker(b, newEngine(t), nil, quiet)
	assert.Error(t, w.Start(Config{}))
	require.NoError(t, w.Stop())
}

func TestWorkerPublishesAnalysisAndAlert(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	m := metrics.NewCollector("clm", quiet)
	w := NewWorker(b, newEngine(t), m, quiet)
	require.NoError(t, w.Start(Config{TenantIDs: []string{"tenant-test"}}))
	defer w.Stop()

	analyses := collect(t, b, "tenant-test", domain.TopicFiscalAnalysis)
	alerts := collect(t, b, "tenant-test", domain.TopicFiscalAlert)

	publishContract(t, b, "tenant-test", domain.TopicContractCreated, interstateSale)

	ev := receive(t, analyses)
	assert.Equal(t, "tenant-test", ev.TenantID)
	assert.Equal(t, "trace-001", ev.TraceID)
	assert.Equal(t, "CT-2024-001", ev.ContractNumber)
	require.NotNil(t, ev.Analysis)
	assert.Equal(t, "c-001", ev.Analysis.ContractID)
	assert.Equal(t, 70, ev.Analysis.Score)
	assert.Equal(t, 1, ev.Analysis.RiskCount)

	alert := receive(t, alerts)
	assert.Equal(t, "CT-2024-001", alert.ContractNumber)

	require.Eventually(t, func() bool { return w.GetStats().Processed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), w.GetStats().Alerted)
}

func TestWorkerNoAlertWithoutRisk(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	w := NewWorker(b, newEngine(t), nil, quiet)
	require.NoError(t, w.Start(Config{}))
	defer w.Stop()

	analyses := collect(t, b, "acme", domain.TopicFiscalAnalysis)
	alerts := collect(t, b, "acme", domain.TopicFiscalAlert)

	publishContract(t, b, "acme", domain.TopicContractUpdated, export)

	ev := receive(t, analyses)
	assert.Equal(t, 0, ev.Analysis.RiskCount)
	assert.Equal(t, 45, ev.Analysis.Score)

	select {
	case <-alerts:
		t.Fatal("alert published for a contract without risk")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(0), w.GetStats().Alerted)
}

func TestWorkerWildcardSeesEveryTenant(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	w := NewWorker(b, newEngine(t), nil, quiet)
	require.NoError(t, w.Start(Config{}))
	defer w.Stop()

	publishContract(t, b, "tenant-a", domain.TopicContractCreated, interstateSale)
	publishContract(t, b, "tenant-b", domain.TopicContractCreated, export)

	require.Eventually(t, func() bool { return w.GetStats().Processed == 2 }, time.Second, 5*time.Millisecond)
}

func TestWorkerCountsBadEvents(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	w := NewWorker(b, newEngine(t), nil, quiet)
	require.NoError(t, w.Start(Config{TenantIDs: []string{"t1"}}))
	defer w.Stop()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "t1", domain.TopicContractCreated, []byte("{not json")))

	payload, err := json.Marshal(domain.ContractEvent{Action: "created", ContractID: "gone"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "t1", domain.TopicContractCreated, payload))

	require.Eventually(t, func() bool { return w.GetStats().Failed == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), w.GetStats().Processed)
}
