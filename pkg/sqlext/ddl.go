package sqlext

import (
	"strconv"
	"strings"

	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// IndexMethod is the DDL's USING clause: HNSW or FLAT.
type IndexMethod int

const (
	MethodHNSW IndexMethod = iota
	MethodFlat
)

// ParseIndexMethod maps the USING clause's token to an IndexMethod.
func ParseIndexMethod(using string) (IndexMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(using)) {
	case "HNSW":
		return MethodHNSW, nil
	case "FLAT":
		return MethodFlat, nil
	default:
		return 0, vecerr.Wrapf("sqlext.ParseIndexMethod", vecerr.ErrBadConfig, "unknown index method %q", using)
	}
}

// IndexOptions is the parsed, validated form of a CREATE VECTOR INDEX
// statement's WITH clause (spec.md §6.1).
type IndexOptions struct {
	Metric         kernel.Metric
	M              int
	EfConstruction int
	EfSearch       int
	Quantization   codec.Quantization
	Seed           int64
	SeedSet        bool
}

// DefaultIndexOptions mirrors spec.md §6.1's defaults: metric='cosine',
// m=16, ef_construction=200, ef_search=50, quantization='none', and a
// non-deterministic seed (left unset here; the caller draws one if
// SeedSet stays false).
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		Metric:         kernel.Cosine,
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
		Quantization:   codec.None,
	}
}

func parseMetric(s string) (kernel.Metric, error) {
	switch strings.ToLower(s) {
	case "cosine":
		return kernel.Cosine, nil
	case "l2":
		return kernel.L2, nil
	case "dot":
		return kernel.Dot, nil
	case "hamming":
		return kernel.Hamming, nil
	default:
		return 0, vecerr.Wrapf("sqlext.parseMetric", vecerr.ErrBadConfig, "unknown metric %q", s)
	}
}

func parseQuantization(s string) (codec.Quantization, error) {
	switch strings.ToLower(s) {
	case "none":
		return codec.None, nil
	case "scalar8":
		return codec.Scalar8, nil
	case "binary":
		return codec.Binary, nil
	default:
		return 0, vecerr.Wrapf("sqlext.parseQuantization", vecerr.ErrBadConfig, "unknown quantization %q", s)
	}
}

// ParseIndexOptions validates a WITH-options map against spec.md §6.1's
// recognized keys, rejecting any key it doesn't recognize ("Unknown WITH
// options → reject").
func ParseIndexOptions(raw map[string]string) (IndexOptions, error) {
	opts := DefaultIndexOptions()
	for key, value := range raw {
		switch strings.ToLower(key) {
		case "metric":
			metric, err := parseMetric(value)
			if err != nil {
				return IndexOptions{}, err
			}
			opts.Metric = metric
		case "m":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return IndexOptions{}, vecerr.Wrapf("sqlext.ParseIndexOptions", vecerr.ErrBadConfig, "invalid m %q", value)
			}
			opts.M = n
		case "ef_construction":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return IndexOptions{}, vecerr.Wrapf("sqlext.ParseIndexOptions", vecerr.ErrBadConfig, "invalid ef_construction %q", value)
			}
			opts.EfConstruction = n
		case "ef_search":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return IndexOptions{}, vecerr.Wrapf("sqlext.ParseIndexOptions", vecerr.ErrBadConfig, "invalid ef_search %q", value)
			}
			opts.EfSearch = n
		case "quantization":
			q, err := parseQuantization(value)
			if err != nil {
				return IndexOptions{}, err
			}
			opts.Quantization = q
		case "seed":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return IndexOptions{}, vecerr.Wrapf("sqlext.ParseIndexOptions", vecerr.ErrBadConfig, "invalid seed %q", value)
			}
			opts.Seed = n
			opts.SeedSet = true
		default:
			return IndexOptions{}, vecerr.Wrapf("sqlext.ParseIndexOptions", vecerr.ErrBadConfig, "unknown option %q", key)
		}
	}
	if opts.Metric == kernel.Hamming && opts.Quantization != codec.Binary {
		return IndexOptions{}, vecerr.Wrap("sqlext.ParseIndexOptions", vecerr.ErrBadConfig,
			"metric=hamming requires quantization=binary")
	}
	if opts.Quantization == codec.Binary && opts.Metric != kernel.Hamming {
		return IndexOptions{}, vecerr.Wrap("sqlext.ParseIndexOptions", vecerr.ErrBadConfig,
			"quantization=binary only supports metric=hamming")
	}
	return opts, nil
}

// RegistryConfigOptions is the parsed form of spec.md §6.1's registry
// configuration options.
type RegistryConfigOptions struct {
	MaxMemoryMB           uint32
	LazyIndexLoading      bool
	EvictOnMemoryPressure bool
	MaxDimensions         uint32
	DefaultIndexKind      IndexMethod
	DefaultMetric         kernel.Metric
	DefaultQuantization   codec.Quantization
}

// DefaultRegistryConfigOptions mirrors spec.md §6.1's registry defaults.
func DefaultRegistryConfigOptions() RegistryConfigOptions {
	return RegistryConfigOptions{
		MaxMemoryMB:      256,
		LazyIndexLoading: true,
		MaxDimensions:    4096,
		DefaultIndexKind: MethodHNSW,
		DefaultMetric:    kernel.Cosine,
	}
}

// ParseRegistryConfigOptions validates a registry configuration options
// map, rejecting unknown keys the same way ParseIndexOptions does.
func ParseRegistryConfigOptions(raw map[string]string) (RegistryConfigOptions, error) {
	opts := DefaultRegistryConfigOptions()
	for key, value := range raw {
		switch strings.ToLower(key) {
		case "max_memory_mb":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return RegistryConfigOptions{}, vecerr.Wrapf("sqlext.ParseRegistryConfigOptions", vecerr.ErrBadConfig, "invalid max_memory_mb %q", value)
			}
			opts.MaxMemoryMB = uint32(n)
		case "lazy_index_loading":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return RegistryConfigOptions{}, vecerr.Wrapf("sqlext.ParseRegistryConfigOptions", vecerr.ErrBadConfig, "invalid lazy_index_loading %q", value)
			}
			opts.LazyIndexLoading = b
		case "evict_on_memory_pressure":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return RegistryConfigOptions{}, vecerr.Wrapf("sqlext.ParseRegistryConfigOptions", vecerr.ErrBadConfig, "invalid evict_on_memory_pressure %q", value)
			}
			opts.EvictOnMemoryPressure = b
		case "max_dimensions":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return RegistryConfigOptions{}, vecerr.Wrapf("sqlext.ParseRegistryConfigOptions", vecerr.ErrBadConfig, "invalid max_dimensions %q", value)
			}
			opts.MaxDimensions = uint32(n)
		case "default_index_kind":
			m, err := ParseIndexMethod(value)
			if err != nil {
				return RegistryConfigOptions{}, err
			}
			opts.DefaultIndexKind = m
		case "default_metric":
			m, err := parseMetric(value)
			if err != nil {
				return RegistryConfigOptions{}, err
			}
			opts.DefaultMetric = m
		case "default_quantization":
			q, err := parseQuantization(value)
			if err != nil {
				return RegistryConfigOptions{}, err
			}
			opts.DefaultQuantization = q
		default:
			return RegistryConfigOptions{}, vecerr.Wrapf("sqlext.ParseRegistryConfigOptions", vecerr.ErrBadConfig, "unknown registry option %q", key)
		}
	}
	return opts, nil
}
