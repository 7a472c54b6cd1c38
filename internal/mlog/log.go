package mlog

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/stratumhq/stratum/envelope"
)

// ids returns the identity block common to every log line about env.
func ids(env *envelope.Envelope) []IconWithLabel {
	return []IconWithLabel{
		EventIDIcon.WithID(env.EventID),
		CausationIDIcon.WithID(env.CausationID()),
		CorrelationIDIcon.WithID(env.CorrelationID()),
		TenantIDIcon.WithLabel(env.TenantID),
	}
}

// retryIcon returns the icon to use for an event that has been delivered fc
// times before.
func retryIcon(fc uint) Icon {
	if fc == 0 {
		return ""
	}

	return RetryIcon
}

// LogProduce logs a message indicating that an event is being published.
func LogProduce(
	log logging.Logger,
	env *envelope.Envelope,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{ProduceIcon, ""},
			env.EventType,
		),
	)
}

// LogConsume logs a message indicating that an event is being delivered to a
// consumer.
func LogConsume(
	log logging.Logger,
	consumer string,
	env *envelope.Envelope,
	fc uint,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{ConsumeIcon, retryIcon(fc)},
			consumer,
			env.EventType,
		),
	)
}

// LogAck logs a message indicating that an event was applied and is
// acknowledged.
func LogAck(
	log logging.Logger,
	consumer string,
	env *envelope.Envelope,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{ConsumeIcon, AckIcon},
			consumer,
			env.EventType,
			"applied",
		),
	)
}

// LogSkip logs a message indicating that an event was skipped because the
// consumer has already processed it.
func LogSkip(
	log logging.Logger,
	consumer string,
	env *envelope.Envelope,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{SkipIcon, ""},
			consumer,
			env.EventType,
			"already processed",
		),
	)
}

// LogNack logs a message indicating that delivery of an event failed and
// will be retried.
func LogNack(
	log logging.Logger,
	consumer string,
	env *envelope.Envelope,
	cause error,
	delay time.Duration,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{ConsumeErrorIcon, ErrorIcon},
			consumer,
			cause.Error(),
			fmt.Sprintf("next retry in %s", delay),
		),
	)
}

// LogTerminate logs a message indicating that delivery of an event has been
// stopped permanently.
func LogTerminate(
	log logging.Logger,
	consumer string,
	env *envelope.Envelope,
	cause error,
) {
	logging.LogString(
		log,
		String(
			ids(env),
			[]Icon{TerminateIcon, ErrorIcon},
			consumer,
			cause.Error(),
			"delivery terminated",
		),
	)
}
