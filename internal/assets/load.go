package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/normanking/rigavatar/internal/model"
	"github.com/normanking/rigavatar/internal/motion"
	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/physics"
	"github.com/normanking/rigavatar/internal/renderer"
)

var (
	ErrMissingModel   = errors.New("model geometry buffer missing")
	ErrMissingPhysics = errors.New("physics buffer missing")
)

// TexturePolicy decides what a texture decode failure does to the load.
type TexturePolicy int

const (
	// TextureSkip logs the failure and leaves the slot unbound.
	TextureSkip TexturePolicy = iota
	// TextureFail aborts the load.
	TextureFail
)

func ParseTexturePolicy(s string) (TexturePolicy, error) {
	switch s {
	case "", "skip":
		return TextureSkip, nil
	case "fail":
		return TextureFail, nil
	}
	return TextureSkip, fmt.Errorf("unknown texture policy %q", s)
}

func (p TexturePolicy) String() string {
	if p == TextureFail {
		return "fail"
	}
	return "skip"
}

type Options struct {
	// Settings names the model settings file within the source.
	Settings      string
	TexturePolicy TexturePolicy
	// Naming forces a parameter naming generation; "" or "auto" detects it.
	Naming      string
	Concurrency int
	Logger      zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Settings:    "model.model3.json",
		Concurrency: 8,
		Logger:      zerolog.Nop(),
	}
}

// Bundle is everything an avatar instance is built from.
type Bundle struct {
	Settings   *Settings
	Model      *model.Model
	Physics    *physics.Rig
	Motions    *motion.Set
	Textures   []*image.RGBA
	Generation params.Generation

	// EyeBlink and LipSync are engine parameter indices.
	EyeBlink []int
	LipSync  []int
}

// Load fetches the settings file, then the geometry, physics, motion and
// texture buffers concurrently, and decodes them. Cancelling ctx abandons
// the load and drops anything already decoded.
func Load(ctx context.Context, src Source, opts Options) (*Bundle, error) {
	log := opts.Logger
	start := time.Now()
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	raw, err := src.Fetch(ctx, opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("fetch model settings %s: %w", opts.Settings, err)
	}
	settings, err := ParseSettings(raw)
	if err != nil {
		return nil, err
	}
	refs := settings.FileReferences
	if refs.Moc == "" {
		return nil, ErrMissingModel
	}
	if refs.Physics == "" {
		return nil, ErrMissingPhysics
	}

	type motionJob struct {
		group string
		index int
		ref   MotionRef
	}
	var jobs []motionJob
	for _, group := range settings.MotionGroups() {
		for i, ref := range refs.Motions[group] {
			jobs = append(jobs, motionJob{group: group, index: i, ref: ref})
		}
	}

	var (
		geometry    []byte
		physicsData []byte
		textures    = make([]*image.RGBA, len(refs.Textures))
		texErrs     = make([]error, len(refs.Textures))
		clips       = make([]*motion.Clip, len(jobs))
	)

	p := pool.New().
		WithMaxGoroutines(opts.Concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	p.Go(func(ctx context.Context) error {
		data, err := src.Fetch(ctx, refs.Moc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMissingModel, err)
		}
		geometry = data
		return nil
	})
	p.Go(func(ctx context.Context) error {
		data, err := src.Fetch(ctx, refs.Physics)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMissingPhysics, err)
		}
		physicsData = data
		return nil
	})
	for i, name := range refs.Textures {
		p.Go(func(ctx context.Context) error {
			textures[i], texErrs[i] = fetchTexture(ctx, src, name)
			return nil
		})
	}
	for i, job := range jobs {
		p.Go(func(ctx context.Context) error {
			name := MotionName(job.group, job.index)
			data, err := src.Fetch(ctx, job.ref.File)
			if err == nil {
				clips[i], err = motion.Decode(name, data)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Str("motion", name).Msg("motion skipped")
				return nil
			}
			if job.ref.FadeInTime != nil && *job.ref.FadeInTime >= 0 {
				clips[i].FadeIn = *job.ref.FadeInTime
			}
			if job.ref.FadeOutTime != nil && *job.ref.FadeOutTime >= 0 {
				clips[i].FadeOut = *job.ref.FadeOutTime
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("asset load abandoned: %w", ctx.Err())
		}
		return nil, err
	}

	m, err := model.Decode(geometry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", refs.Moc, err)
	}

	rig, err := physics.Decode(physicsData, m.Parameters())
	if err != nil {
		if errors.Is(err, physics.ErrNoSettings) {
			return nil, fmt.Errorf("%w: %w", ErrMissingPhysics, err)
		}
		return nil, fmt.Errorf("%s: %w", refs.Physics, err)
	}

	if len(refs.Textures) == 0 {
		textures = make([]*image.RGBA, m.EmbeddedImages())
		texErrs = make([]error, len(textures))
		for i := range texErrs {
			texErrs[i] = fmt.Errorf("texture %d: not embedded", i)
		}
	}
	for i, terr := range texErrs {
		if terr == nil {
			continue
		}
		if data, ok := m.EmbeddedImage(i); ok {
			if img, err := renderer.DecodeTexture(data); err == nil {
				textures[i] = img
				continue
			}
		}
		if opts.TexturePolicy == TextureFail {
			return nil, fmt.Errorf("texture slot %d: %w", i, terr)
		}
		log.Warn().Err(terr).Int("slot", i).Msg("texture skipped, slot left unbound")
	}

	set, err := motion.NewSet(clips)
	if err != nil {
		return nil, err
	}

	gen, err := resolveGeneration(opts.Naming, m.Parameters())
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("asset load abandoned: %w", err)
	}

	b := &Bundle{
		Settings:   settings,
		Model:      m,
		Physics:    rig,
		Motions:    set,
		Textures:   textures,
		Generation: gen,
		EyeBlink:   groupIndices(settings, GroupEyeBlink, m.Parameters(), params.EyeLOpen.Name(gen), params.EyeROpen.Name(gen)),
		LipSync:    groupIndices(settings, GroupLipSync, m.Parameters(), params.MouthOpenY.Name(gen)),
	}

	log.Info().
		Int("drawables", len(m.Drawables())).
		Int("parameters", m.Parameters().Len()).
		Int("textures", len(textures)).
		Int("motions", set.Len()).
		Int("strands", rig.Strands()).
		Dur("took", time.Since(start)).
		Msg("assets loaded")
	return b, nil
}

func fetchTexture(ctx context.Context, src Source, name string) (*image.RGBA, error) {
	data, err := src.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	img, err := renderer.DecodeTexture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return img, nil
}

func resolveGeneration(naming string, table *params.Table) (params.Generation, error) {
	if naming == "" || naming == "auto" {
		return params.DetectGeneration(table), nil
	}
	g, ok := params.ParseGeneration(naming)
	if !ok {
		return params.Modern, fmt.Errorf("unknown parameter naming %q", naming)
	}
	return g, nil
}

// groupIndices resolves a settings group to engine indices. Without the
// group the fallback ids are used.
func groupIndices(s *Settings, group string, table *params.Table, fallback ...string) []int {
	ids := fallback
	if s.HasGroup(group) {
		ids = s.GroupIDs(group)
	}
	idx := lo.FilterMap(ids, func(id string, _ int) (int, bool) {
		i := table.Index(id)
		return i, i >= 0
	})
	return lo.Uniq(idx)
}
