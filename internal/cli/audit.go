package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shopbot/internal/auditlog"
	"shopbot/internal/kstream"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Consume reply outcomes from Kafka into daily JSONL files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg, log := cc.cfg, cc.log

			if cfg.Kafka.Broker == "" {
				return errors.New("kafka.broker is required for audit")
			}

			reader := kstream.NewReader(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID)
			defer reader.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("topic", cfg.Kafka.Topic).
				Str("group", cfg.Kafka.GroupID).
				Str("dir", cfg.Audit.Dir).
				Msg("audit consumer started")
			return kstream.ConsumeOutcomes(ctx, reader, auditlog.NewWriter(cfg.Audit.Dir), log)
		},
	}
}
