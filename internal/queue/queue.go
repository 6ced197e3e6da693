// Package queue runs assessments submitted through NATS JetStream. Requests arrive on
// wallcheck.assess.<equipment>; each stored calculation is announced on
// wallcheck.assessed.<equipment>.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
)

const (
	SubjectAssess   = "wallcheck.assess"
	SubjectAssessed = "wallcheck.assessed"

	triggeredBy = "queue"
)

// Decision is what happens to a delivered message.
type Decision int

const (
	Ack Decision = iota
	// Nak asks for redelivery; the store is idempotent on the request key.
	Nak
	// Term drops a message that can never succeed as sent.
	Term
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	case Term:
		return "term"
	default:
		return "unknown"
	}
}

// Decide maps a handling error to a delivery decision. Bad input, missing data and
// computation failures are terminal; storage problems and anything untyped, such as a
// cancelled context, are retried.
func Decide(err error) Decision {
	if err == nil {
		return Ack
	}
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindResolution, errs.KindComputation, errs.KindInvariant:
		return Term
	default:
		return Nak
	}
}

// Job is the message body on wallcheck.assess.*.
type Job struct {
	Request     assessment.Request `json:"request"`
	WithRBI     bool               `json:"rbi,omitempty"`
	TriggeredBy string             `json:"triggered_by,omitempty"`
}

// Event is published once a calculation is stored.
type Event struct {
	CalculationID string `json:"calculation_id"`
	EquipmentID   string `json:"equipment_id"`
	Verdict       string `json:"verdict"`
	RiskLevel     string `json:"risk_level"`
	RBI           int    `json:"rbi_results"`
}

// Assessor is the part of the assessment service the worker drives.
type Assessor interface {
	Assess(ctx context.Context, req assessment.Request, triggeredBy string) (assessment.Assessment, error)
	AssessWithRBI(ctx context.Context, req assessment.Request, triggeredBy string) (assessment.Assessment, error)
}

// Token turns an equipment id into a single subject token.
func Token(equipmentID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, equipmentID)
}

func AssessSubject(equipmentID string) string   { return SubjectAssess + "." + Token(equipmentID) }
func AssessedSubject(equipmentID string) string { return SubjectAssessed + "." + Token(equipmentID) }

// Handle decodes one message and runs the assessment. The subject must name the same
// equipment as the request; an empty equipment id is taken from the subject.
func Handle(ctx context.Context, svc Assessor, subject string, data []byte) (assessment.Assessment, error) {
	var job Job
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return assessment.Assessment{}, errs.Validationf("body", "malformed job: %v", err)
	}
	token := strings.TrimPrefix(subject, SubjectAssess+".")
	if token == subject || token == "" {
		return assessment.Assessment{}, errs.Validationf("subject", "subject %q is not under %s", subject, SubjectAssess)
	}
	if job.Request.EquipmentID == "" {
		job.Request.EquipmentID = token
	} else if Token(job.Request.EquipmentID) != token {
		return assessment.Assessment{}, errs.Validationf("equipment_id", "request for %q delivered on %q", job.Request.EquipmentID, subject)
	}
	by := job.TriggeredBy
	if by == "" {
		by = triggeredBy
	}
	if job.WithRBI {
		return svc.AssessWithRBI(ctx, job.Request, by)
	}
	return svc.Assess(ctx, job.Request, by)
}

// Msg is the slice of jetstream.Msg the worker needs.
type Msg interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Publisher is satisfied by jetstream.JetStream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Worker struct {
	Service Assessor
	Events  Publisher
}

// Process handles one delivery and settles it. The event is published before the ack,
// so a failed publish is redelivered and re-announced.
func (w *Worker) Process(ctx context.Context, m Msg) Decision {
	ctx = logging.WithAttrs(ctx, slog.String("component", "queue"), slog.String("subject", m.Subject()))
	a, err := Handle(ctx, w.Service, m.Subject(), m.Data())
	if err == nil && w.Events != nil {
		err = w.announce(ctx, a)
	}
	decision := Decide(err)
	switch decision {
	case Ack:
		err = m.Ack()
		logging.Info(ctx, "assessment recorded", slog.String("calculation_id", a.ID))
	case Nak:
		logging.Warn(ctx, "assessment will be retried", slog.Any("error", errs.Loggable(err)))
		err = m.Nak()
	case Term:
		logging.Warn(ctx, "assessment rejected", slog.Any("error", errs.Loggable(err)))
		err = m.Term()
	}
	if err != nil {
		logging.Error(ctx, "settle message failed", slog.String("decision", decision.String()), slog.Any("error", errs.Loggable(err)))
	}
	return decision
}

func (w *Worker) announce(ctx context.Context, a assessment.Assessment) error {
	body, err := json.Marshal(Event{
		CalculationID: a.ID,
		EquipmentID:   a.Inputs.EquipmentID,
		Verdict:       string(a.Verdict),
		RiskLevel:     string(a.RiskLevel),
		RBI:           len(a.RBI),
	})
	if err != nil {
		return errs.Wrap(err, "encode event")
	}
	if _, err := w.Events.Publish(ctx, AssessedSubject(a.Inputs.EquipmentID), body); err != nil {
		return errs.Persistence("publish event", err)
	}
	return nil
}

// Options configure the JetStream stream and durable consumer.
type Options struct {
	URL        string
	Stream     string
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
}

// Run connects, makes sure the stream and consumer exist and processes messages until
// ctx is done.
func Run(ctx context.Context, opts Options, svc Assessor) error {
	nc, err := nats.Connect(opts.URL, nats.Name("wallcheck-worker"))
	if err != nil {
		return errs.Wrapf(err, "connect %s", opts.URL)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return errs.Wrap(err, "jetstream")
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{SubjectAssess + ".*", SubjectAssessed + ".*"},
	})
	if err != nil {
		return errs.Wrapf(err, "stream %s", opts.Stream)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		FilterSubject: SubjectAssess + ".*",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
	})
	if err != nil {
		return errs.Wrapf(err, "consumer %s", opts.Durable)
	}

	w := &Worker{Service: svc, Events: js}
	cc, err := cons.Consume(func(m jetstream.Msg) {
		w.Process(ctx, m)
	})
	if err != nil {
		return errs.Wrap(err, "consume")
	}
	defer cc.Stop()

	logging.Info(ctx, "worker started", slog.String("stream", opts.Stream), slog.String("durable", opts.Durable))
	<-ctx.Done()
	logging.Info(ctx, "worker stopping")
	return nil
}

// Submit publishes a job for asynchronous assessment.
func Submit(ctx context.Context, p Publisher, job Job) error {
	if strings.TrimSpace(job.Request.EquipmentID) == "" {
		return errs.Validation("equipment_id", "equipment id is required")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return errs.Wrap(err, "encode job")
	}
	if _, err := p.Publish(ctx, AssessSubject(job.Request.EquipmentID), body); err != nil {
		return fmt.Errorf("submit %s: %w", job.Request.EquipmentID, err)
	}
	return nil
}
