// Package tracts derives the standardized Baltimore City tract layer from
// the raw TIGER/Line census tracts and mirrors raw shapes to the raw zone.
package tracts

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// GEOID properties tried in order
var geoidKeys = []string{"GEOID", "GEOID20"}

// Result summarizes one standardization
type Result struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Read   int    `json:"read"`
	Kept   int    `json:"kept"`
	CRS    string `json:"crs"`
}

// Standardize keeps the tracts whose GEOID starts with countyPrefix and
// writes them to dest with only a tract_id property
func Standardize(ctx context.Context, resolver *storage.Resolver, src, dest, countyPrefix string) (*Result, error) {
	layer, err := geo.ReadLayer(ctx, resolver, src)
	if err != nil {
		return nil, err
	}
	if len(layer.Features) > 0 && geoidKey(layer.Features[0].Properties) == "" {
		return nil, errors.New(errors.ErrorTypeData, "tract layer has no GEOID or GEOID20 property").
			WithDetail("path", src)
	}

	out := &geo.Layer{CRS: layer.CRS}
	for _, f := range layer.Features {
		id, ok := geo.FormatID(f.Properties[geoidKey(f.Properties)])
		if !ok || !strings.HasPrefix(id, countyPrefix) {
			continue
		}
		out.Features = append(out.Features, geo.Feature{
			Geometry:   f.Geometry,
			Properties: map[string]interface{}{geo.TractIDProperty: id},
		})
	}
	if len(out.Features) == 0 {
		return nil, errors.Newf(errors.ErrorTypeData, "no tracts match county prefix %q", countyPrefix).
			WithDetail("path", src)
	}

	if err := geo.WriteGeoJSON(ctx, resolver, dest, out); err != nil {
		return nil, err
	}
	res := &Result{Source: src, Dest: dest, Read: len(layer.Features), Kept: len(out.Features), CRS: layer.CRS.String()}
	logger.Get().Info("standardized tracts",
		zap.String("source", src),
		zap.String("dest", dest),
		zap.Int("read", res.Read),
		zap.Int("kept", res.Kept))
	return res, nil
}

func geoidKey(props map[string]interface{}) string {
	for _, k := range geoidKeys {
		if _, ok := props[k]; ok {
			return k
		}
	}
	return ""
}

// Mirror copies the raw local shape files to <raw>/shapes/. Missing local
// files are skipped.
func Mirror(ctx context.Context, resolver *storage.Resolver, cfg *config.Config) ([]string, error) {
	var uploaded []string
	for _, path := range []string{cfg.Paths.TractsRaw, cfg.Paths.CSAsRaw} {
		f, err := os.Open(path) //nolint:gosec // G304: paths come from configuration
		if os.IsNotExist(err) {
			logger.Get().Warn("raw shape file not found, not mirrored", zap.String("path", path))
			continue
		}
		if err != nil {
			return uploaded, errors.Wrap(err, errors.ErrorTypeFile, "failed to open shape file").WithDetail("path", path)
		}

		dest := cfg.ShapeMirrorURI(path)
		store, key, err := resolver.Resolve(ctx, dest)
		if err == nil {
			err = store.Put(ctx, key, f, map[string]string{"content-type": "application/geo+json"})
		}
		f.Close()
		if err != nil {
			return uploaded, err
		}
		logger.Get().Info("mirrored raw shape", zap.String("path", path), zap.String("dest", dest))
		uploaded = append(uploaded, dest)
	}
	return uploaded, nil
}
