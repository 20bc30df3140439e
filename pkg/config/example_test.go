package config_test

import (
	"fmt"

	"github.com/wjdataeng/tractfeatures/pkg/config"
)

// ExampleNew demonstrates the default zones derived from the landing bucket.
func ExampleNew() {
	cfg := config.New("/srv/project")

	fmt.Println(cfg.Storage.Clean)
	fmt.Println(cfg.FeatureURI("banks"))
	fmt.Println(cfg.CuratedTableURI())
	fmt.Println(cfg.Paths.Tracts)

	// Output:
	// s3://dataeng-landing-wj/clean
	// s3://dataeng-landing-wj/clean/features/tract_banks_count/
	// s3://dataeng-landing-wj/curated/tract_features/
	// /srv/project/shapes/baltimore_tracts_2020.geojson
}

// ExampleDetectRoot shows root detection when running from notebooks/.
func ExampleDetectRoot() {
	fmt.Println(config.DetectRoot("/home/wj/tracts/notebooks"))
	fmt.Println(config.DetectRoot("/home/wj/tracts"))

	// Output:
	// /home/wj/tracts
	// /home/wj/tracts
}
