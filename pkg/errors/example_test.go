package errors_test

import (
	"fmt"
	"io"
	"os"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeSchema, "No tract id column found in feature DataFrame.").
		WithDetail("feature", "tract_banks_count").
		WithDetail("columns", []string{"name_of_bank", "count"})

	fmt.Println(err.Error())

	// Output:
	// schema: No tract id column found in feature DataFrame.
}

// ExampleWrap shows how an underlying error keeps its identity through wrapping.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read chunk").
		WithDetail("source", "s3://dataeng-landing-wj/raw/cbp23co.txt").
		WithDetail("chunk", 3)

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("file error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// file error
	// caused by unexpected EOF
}

// ExampleTypeOf shows how the CLI classifies failures.
func ExampleTypeOf() {
	wrapped := errors.Wrap(os.ErrNotExist, errors.ErrorTypeNotFound, "tracts file missing")
	plain := fmt.Errorf("boom")

	fmt.Println(errors.TypeOf(wrapped))
	fmt.Println(errors.TypeOf(plain))

	// Output:
	// not_found
	// internal
}

// Example_errorChain shows how each layer adds its own context.
func Example_errorChain() {
	err := readFeature()
	if err != nil {
		err = errors.Wrap(err, errors.ErrorTypeData, "failed to curate tract features")
	}

	fmt.Println(err)

	// Output:
	// data: failed to curate tract features: not_found: dataset has no parquet files
}

func readFeature() error {
	return errors.New(errors.ErrorTypeNotFound, "dataset has no parquet files").
		WithDetail("uri", "s3://dataeng-landing-wj/clean/features/tract_banks_count/")
}

// ExampleDetailsOf collects the context every layer attached.
func ExampleDetailsOf() {
	err := errors.Wrap(readFeature(), errors.ErrorTypeData, "failed to merge feature").
		WithDetail("feature", "tract_banks_count")

	details := errors.DetailsOf(err)
	fmt.Println(details["feature"])
	fmt.Println(details["uri"])
	fmt.Println(errors.ExitCode(err))

	// Output:
	// tract_banks_count
	// s3://dataeng-landing-wj/clean/features/tract_banks_count/
	// 1
}
