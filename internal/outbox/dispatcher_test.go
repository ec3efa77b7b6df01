package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// fakeDeliverer fails delivery for the email addresses listed in failFor.
type fakeDeliverer struct {
	delivered []string
	failFor   map[string]bool
}

func (f *fakeDeliverer) Deliver(_ context.Context, lead domain.LeadRecord, _ string) error {
	if f.failFor[lead.EmailFrom] {
		return errors.New("delivery failed")
	}
	f.delivered = append(f.delivered, lead.EmailFrom)
	return nil
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Interval:   30 * time.Second,
		BatchSize:  20,
		RPS:        100,
		StaleAfter: 5 * time.Minute,
		Retention:  30 * 24 * time.Hour,
	}
}

func expectCycleBookkeeping(mock sqlmock.Sqlmock) {
	// ResetStale runs before the claim, cleanup after the batch.
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs("300 seconds").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectCycleCleanup(mock sqlmock.Sqlmock) {
	mock.ExpectExec("DELETE FROM lead_outbox").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestDispatchDeliversClaimedEntries(t *testing.T) {
	repo, mock := newTestRepository(t)
	deliverer := &fakeDeliverer{}
	dispatcher := NewDispatcher(repo, deliverer, testDispatcherConfig(), nil, logger.NewNop())

	now := time.Now()
	expectCycleBookkeeping(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM lead_outbox").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("id-1", domain.SourceContactForm,
				[]byte(`{"name":"A","email_from":"a@x.com"}`),
				"A", "a@x.com", "pending", 0, 5, nil, now, now, nil, nil))
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// MarkDelivered for the successful entry.
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectCycleCleanup(mock)

	delivered, err := dispatcher.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered != 1 {
		t.Errorf("Dispatch() delivered = %d, want 1", delivered)
	}
	if len(deliverer.delivered) != 1 || deliverer.delivered[0] != "a@x.com" {
		t.Errorf("delivered leads = %v, want [a@x.com]", deliverer.delivered)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDispatchMarksFailedOnDeliveryError(t *testing.T) {
	repo, mock := newTestRepository(t)
	deliverer := &fakeDeliverer{failFor: map[string]bool{"b@x.com": true}}
	dispatcher := NewDispatcher(repo, deliverer, testDispatcherConfig(), nil, logger.NewNop())

	now := time.Now()
	expectCycleBookkeeping(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM lead_outbox").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("id-2", domain.SourceChatbot,
				[]byte(`{"name":"B","email_from":"b@x.com"}`),
				"B", "b@x.com", "pending", 1, 5, nil, now, now, nil, nil))
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// MarkFailed with the delivery error message.
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs("id-2", "delivery failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectCycleCleanup(mock)

	delivered, err := dispatcher.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered != 0 {
		t.Errorf("Dispatch() delivered = %d, want 0", delivered)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDispatchEmptyQueue(t *testing.T) {
	repo, mock := newTestRepository(t)
	dispatcher := NewDispatcher(repo, &fakeDeliverer{}, testDispatcherConfig(), nil, logger.NewNop())

	expectCycleBookkeeping(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM lead_outbox").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(entryColumns()))
	mock.ExpectCommit()
	expectCycleCleanup(mock)

	delivered, err := dispatcher.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered != 0 {
		t.Errorf("Dispatch() delivered = %d, want 0", delivered)
	}
}

func TestDispatchCorruptPayloadFailsOutright(t *testing.T) {
	repo, mock := newTestRepository(t)
	deliverer := &fakeDeliverer{}
	dispatcher := NewDispatcher(repo, deliverer, testDispatcherConfig(), nil, logger.NewNop())

	now := time.Now()
	expectCycleBookkeeping(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM lead_outbox").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("id-3", domain.SourceContactForm, []byte("not json"),
				"C", "c@x.com", "pending", 0, 5, nil, now, now, nil, nil))
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// MarkExhausted: an unreadable payload goes straight to failed
	// instead of being re-claimed every backoff cycle.
	mock.ExpectExec("UPDATE lead_outbox").
		WithArgs("id-3", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectCycleCleanup(mock)

	delivered, err := dispatcher.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered != 0 {
		t.Errorf("Dispatch() delivered = %d, want 0", delivered)
	}
	if len(deliverer.delivered) != 0 {
		t.Error("corrupt payload reached the deliverer")
	}
}
