package plan

import (
	"errors"
	"fmt"

	"github.com/am-lens/bundlectl/internal/config"
)

// Budget holds the recommended maximum sizes, in bytes.
type Budget struct {
	MaxEntrypointBytes int64 `json:"max_entrypoint_bytes"`
	MaxAssetBytes      int64 `json:"max_asset_bytes"`
}

// NewBudget validates the limits. Zero selects the default limit.
func NewBudget(maxEntrypoint, maxAsset int64) (Budget, error) {
	var problems []error
	if maxEntrypoint < 0 {
		problems = append(problems, config.NewError(config.Invalid, "max_entrypoint_size", errors.New("must not be negative")))
	}
	if maxAsset < 0 {
		problems = append(problems, config.NewError(config.Invalid, "max_asset_size", errors.New("must not be negative")))
	}
	if err := config.Aggregate(problems); err != nil {
		return Budget{}, err
	}

	b := Budget{MaxEntrypointBytes: maxEntrypoint, MaxAssetBytes: maxAsset}
	if b.MaxEntrypointBytes == 0 {
		b.MaxEntrypointBytes = config.DefaultBudgetBytes
	}
	if b.MaxAssetBytes == 0 {
		b.MaxAssetBytes = config.DefaultBudgetBytes
	}
	return b, nil
}

// Warning reports an artifact over budget. Asset is filled in by callers
// that know which artifact was checked.
type Warning struct {
	Asset      string
	Size       int64
	Limit      int64
	Entrypoint bool
}

func (w *Warning) String() string {
	kind := "asset"
	if w.Entrypoint {
		kind = "entrypoint"
	}
	name := w.Asset
	if name == "" {
		name = "artifact"
	}
	return fmt.Sprintf("%s %s (%d bytes) exceeds the recommended %s size limit (%d bytes)", kind, name, w.Size, kind, w.Limit)
}

// Check compares an artifact size with the budget. Entrypoints are held to
// the entrypoint limit first, then to the asset limit like any artifact.
// A nil result means the artifact is within budget.
func (b Budget) Check(size int64, isEntrypoint bool) *Warning {
	if isEntrypoint && size > b.MaxEntrypointBytes {
		return &Warning{Size: size, Limit: b.MaxEntrypointBytes, Entrypoint: true}
	}
	if size > b.MaxAssetBytes {
		return &Warning{Size: size, Limit: b.MaxAssetBytes}
	}
	return nil
}
