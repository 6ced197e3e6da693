package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/repo"
)

type fakeAssessor struct {
	err     error
	withRBI bool
	by      string
}

func (f *fakeAssessor) Assess(_ context.Context, req assessment.Request, by string) (assessment.Assessment, error) {
	f.by = by
	if f.err != nil {
		return assessment.Assessment{}, f.err
	}
	return assessment.Assessment{StoredCalculation: repo.StoredCalculation{Calculation: api579.Calculation{
		ID:        "calc-1",
		Inputs:    api579.Input{EquipmentID: req.EquipmentID},
		Verdict:   api579.FitWithConditions,
		RiskLevel: risk.Medium,
	}}}, nil
}

func (f *fakeAssessor) AssessWithRBI(ctx context.Context, req assessment.Request, by string) (assessment.Assessment, error) {
	f.withRBI = true
	return f.Assess(ctx, req, by)
}

type fakeMsg struct {
	subject string
	data    []byte
	settled []string
}

func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Ack() error      { m.settled = append(m.settled, "ack"); return nil }
func (m *fakeMsg) Nak() error      { m.settled = append(m.settled, "nak"); return nil }
func (m *fakeMsg) Term() error     { m.settled = append(m.settled, "term"); return nil }

type fakePublisher struct {
	err      error
	subjects []string
	bodies   [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.subjects = append(p.subjects, subject)
	p.bodies = append(p.bodies, data)
	return &jetstream.PubAck{Stream: "WALLCHECK"}, nil
}

func job(t *testing.T, j Job) []byte {
	t.Helper()
	b, err := json.Marshal(j)
	require.NoError(t, err)
	return b
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Decision
	}{
		{nil, Ack},
		{errs.Validation("readings", "required"), Term},
		{errs.Resolution("history", "fewer than two readings"), Term},
		{errs.Computation("path a", "tmin", "non-positive denominator"), Term},
		{errs.Invariant("material table", "bad"), Term},
		{errs.Persistence("save calculation", errors.New("db down")), Nak},
		{&assessment.UnsavedError{Err: errs.Persistence("save calculation", errors.New("db down"))}, Nak},
		{fmt.Errorf("wrapped: %w", context.Canceled), Nak},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.err), "%v", tt.err)
	}
}

func TestHandleTakesEquipmentFromSubject(t *testing.T) {
	t.Parallel()

	f := &fakeAssessor{}
	a, err := Handle(context.Background(), f, "wallcheck.assess.V-101", job(t, Job{WithRBI: true}))
	require.NoError(t, err)
	assert.Equal(t, "V-101", a.Inputs.EquipmentID)
	assert.True(t, f.withRBI)
	assert.Equal(t, "queue", f.by)
}

func TestHandleRejectsBadMessages(t *testing.T) {
	t.Parallel()

	f := &fakeAssessor{}
	_, err := Handle(context.Background(), f, "wallcheck.assess.V-101", []byte(`{"request":`))
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = Handle(context.Background(), f, "wallcheck.assess.V-101", []byte(`{"unknown":1}`))
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = Handle(context.Background(), f, "other.V-101", job(t, Job{}))
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = Handle(context.Background(), f, "wallcheck.assess.V-101", job(t, Job{Request: assessment.Request{EquipmentID: "V-202"}}))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestProcessAcksAndAnnounces(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	w := &Worker{Service: &fakeAssessor{}, Events: pub}
	m := &fakeMsg{subject: AssessSubject("V-101"), data: job(t, Job{Request: assessment.Request{EquipmentID: "V-101"}, TriggeredBy: "j.doe"})}

	assert.Equal(t, Ack, w.Process(context.Background(), m))
	assert.Equal(t, []string{"ack"}, m.settled)
	require.Equal(t, []string{"wallcheck.assessed.V-101"}, pub.subjects)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.bodies[0], &ev))
	assert.Equal(t, "calc-1", ev.CalculationID)
	assert.Equal(t, string(api579.FitWithConditions), ev.Verdict)
}

func TestProcessSettlesFailures(t *testing.T) {
	t.Parallel()

	terminal := &fakeMsg{subject: AssessSubject("V-101"), data: job(t, Job{})}
	w := &Worker{Service: &fakeAssessor{err: errs.Resolution("history", "fewer than two readings")}}
	assert.Equal(t, Term, w.Process(context.Background(), terminal))
	assert.Equal(t, []string{"term"}, terminal.settled)

	retry := &fakeMsg{subject: AssessSubject("V-101"), data: job(t, Job{})}
	w = &Worker{Service: &fakeAssessor{err: errs.Persistence("save calculation", errors.New("db down"))}}
	assert.Equal(t, Nak, w.Process(context.Background(), retry))
	assert.Equal(t, []string{"nak"}, retry.settled)

	unannounced := &fakeMsg{subject: AssessSubject("V-101"), data: job(t, Job{})}
	w = &Worker{Service: &fakeAssessor{}, Events: &fakePublisher{err: errors.New("no responders")}}
	assert.Equal(t, Nak, w.Process(context.Background(), unannounced))
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	require.NoError(t, Submit(context.Background(), pub, Job{Request: assessment.Request{EquipmentID: "Tank 7.A"}}))
	assert.Equal(t, []string{"wallcheck.assess.Tank_7_A"}, pub.subjects)

	assert.Error(t, Submit(context.Background(), pub, Job{}))

	_, err := Handle(context.Background(), &fakeAssessor{}, pub.subjects[0], pub.bodies[0])
	assert.NoError(t, err)
}
