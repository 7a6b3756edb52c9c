package mapping

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Preset is a bulk-importable set of control bindings, typically shipped for
// a specific controller model.
type Preset struct {
	Name     string   `yaml:"name"`
	Mappings []Record `yaml:"mappings"`
}

// ImportPreset parses a preset file and upserts its rows for the given
// owner. Rows that fail validation are skipped; their errors are collected
// and returned alongside the count of rows imported, so one bad row never
// blocks the rest.
func ImportPreset(ctx context.Context, store Store, ownerID string, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, errors.Wrap(err, "reading preset")
	}

	var preset Preset
	if err := yaml.Unmarshal(raw, &preset); err != nil {
		return 0, errors.Wrap(err, "parsing preset")
	}

	provenance := "preset"
	if preset.Name != "" {
		provenance = "preset:" + preset.Name
	}

	imported := 0
	var errs error
	for i, rec := range preset.Mappings {
		rec.OwnerID = ownerID
		rec.Provenance = provenance
		m, err := FromRecord(rec)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "row %d", i))
			continue
		}
		if err := store.Put(ctx, m); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "row %d", i))
			continue
		}
		imported++
	}
	return imported, errs
}
