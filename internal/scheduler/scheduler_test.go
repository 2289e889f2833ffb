package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeExpirer struct {
	batches []int
	err     error
	calls   int
}

func (f *fakeExpirer) ExpireDue(_ context.Context, limit int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

func TestSweepExpired(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name      string
		expirer   *fakeExpirer
		want      int
		wantCalls int
		wantErr   bool
	}{
		{"nothing due", &fakeExpirer{}, 0, 1, false},
		{"single short batch", &fakeExpirer{batches: []int{3}}, 3, 1, false},
		{"full batch continues", &fakeExpirer{batches: []int{expiryBatchSize, 7}}, expiryBatchSize + 7, 2, false},
		{"storage failure", &fakeExpirer{err: errors.New("database is locked")}, 0, 1, true},
		{"deadline is not a failure", &fakeExpirer{err: context.DeadlineExceeded}, 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SweepExpired(context.Background(), tt.expirer, &logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want || tt.expirer.calls != tt.wantCalls {
				t.Errorf("got %d expired in %d calls, want %d in %d", got, tt.expirer.calls, tt.want, tt.wantCalls)
			}
		})
	}
}

func TestRegisterExpiryJobs(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	if err := svc.RegisterExpiryJobs(&fakeExpirer{}, "* * * * *"); err != nil {
		t.Fatalf("RegisterExpiryJobs: %v", err)
	}
	names := svc.Jobs()
	if len(names) != 1 || names[0] != expiryJobName {
		t.Fatalf("unexpected jobs: %v", names)
	}

	if err := svc.RegisterExpiryJobs(nil, "* * * * *"); err == nil {
		t.Error("expected error without an expirer")
	}
	if err := svc.RegisterExpiryJobs(&fakeExpirer{}, "not a cron"); err == nil {
		t.Error("expected error for an invalid cron expression")
	}
}

func TestAddJob_Validation(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	task := func() error { return nil }
	if _, err := svc.AddJob(" ", "* * * * *", task); !errors.Is(err, ErrEmptyJobName) {
		t.Errorf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddJob("job", "", task); !errors.Is(err, ErrEmptyCronExpr) {
		t.Errorf("expected ErrEmptyCronExpr, got %v", err)
	}

	var nilSvc *Service
	if _, err := nilSvc.AddJob("job", "* * * * *", task); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}
