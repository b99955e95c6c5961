package manager

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"civitdl/internal/resolver"
	"civitdl/internal/selection"
	"civitdl/internal/transfer"
	"civitdl/pkg/types"
)

// plan is what a reference resolved to. Either direct is set (a download URL
// given as-is) or versions lists the versions to fetch from model.
type plan struct {
	model    types.Model
	versions []types.Version
	direct   *job
}

// job is one file to transfer.
type job struct {
	model    types.Model
	version  types.Version
	fileType string
	target   transfer.Target
}

func (m *Manager) plan(ctx context.Context, opts Options, interactive bool, log zerolog.Logger) (plan, error) {
	ref, err := resolver.Resolve(opts.Ref)
	if err != nil {
		return plan{}, err
	}
	log.Debug().Str("kind", ref.Kind.String()).Str("ref", ref.Raw).Msg("resolved reference")

	switch ref.Kind {
	case resolver.KindDirectDownload:
		j := m.directJob(ctx, ref, log)
		return plan{model: j.model, direct: &j}, nil

	case resolver.KindVersion:
		model, v, err := m.fetchExactVersion(ctx, ref)
		if err != nil {
			return plan{}, err
		}
		if opts.Version != "" {
			log.Debug().Str("version", opts.Version).Msg("version in reference overrides requested version name")
		}
		return plan{model: model, versions: []types.Version{v}}, nil

	case resolver.KindSearch:
		results, err := m.client.Search(ctx, ref.Query, m.searchLimit)
		if err != nil {
			return plan{}, err
		}
		model, err := selection.ChooseModel(results, interactive, m.prompter)
		if err != nil {
			return plan{}, err
		}
		log.Info().Str("query", ref.Query).Int64("model_id", model.ID).Str("model", model.Name).
			Int("results", len(results)).Msg("using search result")
		return m.versionsOf(model, opts, interactive)

	default:
		model, err := m.client.FetchModel(ctx, ref.ModelID)
		if err != nil {
			return plan{}, err
		}
		return m.versionsOf(model, opts, interactive)
	}
}

func (m *Manager) versionsOf(model types.Model, opts Options, interactive bool) (plan, error) {
	versions, err := selection.ChooseVersions(model, interactive, opts.Version, m.prompter)
	if err != nil {
		return plan{}, err
	}
	return plan{model: model, versions: versions}, nil
}

// fetchExactVersion returns the version a version reference names. The model
// is fetched when its id is known so the declared type is available.
func (m *Manager) fetchExactVersion(ctx context.Context, ref resolver.Reference) (types.Model, types.Version, error) {
	if ref.ModelID == "" {
		v, err := m.client.FetchVersion(ctx, ref.VersionID)
		if err != nil {
			return types.Model{}, types.Version{}, err
		}
		return modelOf(v), v, nil
	}
	model, err := m.client.FetchModel(ctx, ref.ModelID)
	if err != nil {
		return types.Model{}, types.Version{}, err
	}
	for _, v := range model.ModelVersions {
		if strconv.FormatInt(v.ID, 10) == ref.VersionID {
			return model, v, nil
		}
	}
	return types.Model{}, types.Version{}, versionMissingError{modelID: ref.ModelID, versionID: ref.VersionID}
}

// directJob builds the job for a download URL. Metadata lookup is best
// effort: without it the file is routed by name alone and not verified.
func (m *Manager) directJob(ctx context.Context, ref resolver.Reference, log zerolog.Logger) job {
	raw := ref.Raw
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	j := job{target: transfer.Target{URL: raw}}

	v, err := m.client.FetchVersion(ctx, ref.VersionID)
	if err != nil {
		log.Debug().Err(err).Str("version_id", ref.VersionID).Msg("no metadata for download url")
		return j
	}
	j.model = modelOf(v)
	j.version = v
	if f, ok := fileForURL(v.Files, raw); ok {
		j.fileType = f.Type
		j.target.Filename = f.Name
		j.target.ExpectedSize = f.SizeBytes()
		j.target.ExpectedHash = transfer.SelectHash(f.Hashes)
	}
	return j
}

func (m *Manager) jobFor(model types.Model, v types.Version, f types.File) job {
	return job{
		model:    model,
		version:  v,
		fileType: f.Type,
		target: transfer.Target{
			URL:          m.client.DownloadURL(v.ID, f.ID),
			Filename:     f.Name,
			ExpectedSize: f.SizeBytes(),
			ExpectedHash: transfer.SelectHash(f.Hashes),
		},
	}
}

// fileForURL picks the file a download URL refers to: the fileId query
// parameter when present, else the primary file.
func fileForURL(files []types.File, raw string) (types.File, bool) {
	if u, err := url.Parse(raw); err == nil {
		if id := u.Query().Get("fileId"); id != "" {
			for _, f := range files {
				if strconv.FormatInt(f.ID, 10) == id {
					return f, true
				}
			}
			return types.File{}, false
		}
	}
	picked, err := selection.ChooseFiles(files, false, nil)
	if err != nil {
		return types.File{}, false
	}
	return picked[0], true
}

func modelOf(v types.Version) types.Model {
	m := types.Model{ID: v.ModelID, ModelVersions: []types.Version{v}}
	if v.Model != nil {
		m.Name = v.Model.Name
		m.Type = v.Model.Type
	}
	return m
}
