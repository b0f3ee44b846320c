package tolerance

import (
	"context"
	"log/slog"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

// UnitMismatchPolicy decides whether a configuration written for configUnit
// may be applied to data measured in dataUnit.
type UnitMismatchPolicy func(ctx context.Context, configUnit, dataUnit domain.Unit) bool

// AcceptMismatch applies the configuration anyway.
func AcceptMismatch(context.Context, domain.Unit, domain.Unit) bool { return true }

// RejectMismatch refuses the configuration.
func RejectMismatch(context.Context, domain.Unit, domain.Unit) bool { return false }

// WarnMismatch returns a policy that logs the mismatch and accepts it.
func WarnMismatch(logger *slog.Logger) UnitMismatchPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, configUnit, dataUnit domain.Unit) bool {
		logger.WarnContext(ctx, "tolerance configuration unit differs from data unit",
			slog.String("config_unit", string(configUnit)),
			slog.String("data_unit", string(dataUnit)),
		)
		return true
	}
}

// CheckUnit consults policy when cfg was written for a different unit than
// dataUnit. A nil policy rejects. A config with no unit always passes.
func CheckUnit(ctx context.Context, cfg *Config, dataUnit domain.Unit, policy UnitMismatchPolicy) error {
	if cfg == nil || cfg.Unit == domain.UnitNone || cfg.Unit == dataUnit {
		return nil
	}
	if policy != nil && policy(ctx, cfg.Unit, dataUnit) {
		return nil
	}
	return errors.NewConfigError("tolerance configuration unit does not match data", nil).
		WithContext("config_unit", string(cfg.Unit)).
		WithContext("data_unit", string(dataUnit))
}
