package curate_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/wjdataeng/tractfeatures/pkg/convert"
	"github.com/wjdataeng/tractfeatures/pkg/curate"
	"github.com/wjdataeng/tractfeatures/pkg/features"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/testutil"
)

type PipelineSuite struct {
	testutil.LakeSuite
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) column(f *frame.Frame, name string) []float64 {
	col, ok := f.Column(name)
	s.Require().True(ok, name)
	out := make([]float64, col.Len())
	for i := range out {
		s.Require().False(col.IsNull(i), "%s[%d]", name, i)
		out[i] = col.FloatAt(i)
	}
	return out
}

func (s *PipelineSuite) TestConvertThenCurate() {
	ctx := s.Context()
	p := s.Project

	testutil.WriteFile(s.T(), p.LakePath("raw/cbp23co.txt"),
		"fipstate,fipscty,naics,emp\n24,510,------,100\n24,510,11----,3\n24,005,------,80\n24,005,11----,7\n24,003,------,12\n")
	res, err := convert.NewConverter(p.Datasets).ConvertCSVDataset(ctx,
		p.Config.RawURI("cbp23co.txt"), p.Config.CleanURI("cbp/23co/"), convert.Options{ChunkSize: 2})
	s.Require().NoError(err)
	s.Equal(int64(5), res.Rows)
	s.Equal(3, res.Chunks)

	parts, err := p.Datasets.Parts(ctx, p.Config.CleanURI("cbp/23co/"))
	s.Require().NoError(err)
	s.Len(parts, 3)

	testutil.WriteFile(s.T(), p.LakePath("raw/banks.csv"), "name,lon,lat\nM&T,-76.59,39.29\nPNC,-76.595,39.281\n")
	b := features.NewBuilder(p.Config, p.Datasets)
	_, err = b.BuildPointsFeature(ctx, features.Options{Path: p.Config.RawURI("banks.csv"), Feature: "banks"})
	s.Require().NoError(err)
	_, err = b.BuildSchoolsFeature(ctx)
	s.Require().NoError(err)

	c := curate.NewCurator(p.Config, p.Datasets)
	summary, err := c.CurateDynamic(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"tract_id", "tract_banks_count", "tract_schools_count"}, summary.Columns)
	s.Empty(summary.Skipped)

	out, err := p.Datasets.Read(ctx, p.Config.CuratedTableURI())
	s.Require().NoError(err)
	s.Equal(3, out.NumRows())
	s.Equal([]float64{0, 2, 0}, s.column(out, "tract_banks_count"))
	s.Equal([]float64{2, 0, 1}, s.column(out, "tract_schools_count"))
}

func (s *PipelineSuite) TestStaticCurateAfterSchools() {
	ctx := s.Context()
	p := s.Project

	_, err := features.NewBuilder(p.Config, p.Datasets).BuildSchoolsFeature(ctx)
	s.Require().NoError(err)

	summary, err := curate.NewCurator(p.Config, p.Datasets).Curate(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"tract_id", "schools_count"}, summary.Columns)

	out, err := p.Datasets.Read(ctx, p.Config.CuratedTableURI())
	s.Require().NoError(err)
	s.Equal([]float64{2, 0, 1}, s.column(out, "schools_count"))
}
