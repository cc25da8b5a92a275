package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/blindbox/internal/adapters/repository"
	app "github.com/okian/blindbox/internal/app"
	"github.com/okian/blindbox/internal/domain/model"
)

// ErrEmptyFixture is returned when a fixture file holds no records.
var ErrEmptyFixture = errors.New("fixture contains no records")

// Fixture is the YAML document accepted by `revealctl seed`.
type Fixture struct {
	Avatars    []uint64          `yaml:"avatars"`
	Revealed   []RevealedFixture `yaml:"revealed"`
	Soulbounds []SoulboundEntry  `yaml:"soulbounds"`
	Mappings   []MappingFixture  `yaml:"reveal_mappings"`
}

// RevealedFixture is an avatar that was revealed before the import.
type RevealedFixture struct {
	TokenID uint64 `yaml:"token_id"`
	Slot    uint64 `yaml:"slot"`
}

// SoulboundEntry keeps Type as decoded so that numeric and named rarities
// both reach the store unchanged.
type SoulboundEntry struct {
	TokenID uint64 `yaml:"token_id"`
	Type    any    `yaml:"type"`
}

// MappingFixture binds a slot to a metadata file id.
type MappingFixture struct {
	Slot       uint64 `yaml:"slot"`
	MetadataID uint64 `yaml:"metadata_id"`
}

func (f *Fixture) size() int {
	return len(f.Avatars) + len(f.Revealed) + len(f.Soulbounds) + len(f.Mappings)
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load avatars, soulbounds and reveal mappings from a YAML fixture",
		Long: `Write the records of a YAML fixture into the configured store.

Fixture format:
  avatars: [1, 2, 3]
  revealed:
    - {token_id: 4, slot: 17}
  soulbounds:
    - {token_id: 1001, type: legendary}
  reveal_mappings:
    - {slot: 17, metadata_id: 9017}

Existing avatars are left untouched; soulbounds and mappings are replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd.OutOrStdout(), root, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Fixture file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ReadFixture decodes a fixture file.
func ReadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFixture)
	}
	return &f, nil
}

func runSeed(ctx context.Context, out io.Writer, root *rootOptions, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := ReadFixture(path)
	if err != nil {
		return err
	}
	cfg, err := root.loadConfig(ctx)
	if err != nil {
		return err
	}
	warnMemory(out, cfg)

	store, err := repository.Open(ctx, cfg.StoreBackend, app.StoreOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	if err := Apply(ctx, store, f); err != nil {
		return err
	}
	green.Fprintf(out, "✓ seeded %s store: ", cfg.StoreBackend)
	fmt.Fprintf(out, "%d avatars, %d revealed, %d soulbounds, %d mappings\n",
		len(f.Avatars), len(f.Revealed), len(f.Soulbounds), len(f.Mappings))
	return nil
}

// Apply writes every record of f into store.
func Apply(ctx context.Context, store repository.Store, f *Fixture) error {
	for _, id := range f.Avatars {
		if err := store.PutAvatar(ctx, model.Avatar{TokenID: id}); err != nil {
			return fmt.Errorf("avatar %d: %w", id, err)
		}
	}
	for _, r := range f.Revealed {
		slot := r.Slot
		if err := store.PutAvatar(ctx, model.Avatar{TokenID: r.TokenID, Slot: &slot, Revealed: true}); err != nil {
			return fmt.Errorf("revealed avatar %d: %w", r.TokenID, err)
		}
	}
	for _, sb := range f.Soulbounds {
		if err := store.PutSoulbound(ctx, model.Soulbound{TokenID: sb.TokenID, Type: sb.Type}); err != nil {
			return fmt.Errorf("soulbound %d: %w", sb.TokenID, err)
		}
	}
	for _, m := range f.Mappings {
		if err := store.PutRevealMapping(ctx, model.RevealMapping{Slot: m.Slot, MetadataID: m.MetadataID}); err != nil {
			return fmt.Errorf("mapping for slot %d: %w", m.Slot, err)
		}
	}
	return nil
}
