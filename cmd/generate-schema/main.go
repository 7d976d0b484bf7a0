package main

import (
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

var esmondSchema string

func init() {
	flag.StringVar(&esmondSchema, "esmond", "/var/spool/datatypes/esmond.json", "filename to write the spooled esmond record schema")
}

// generate writes the BigQuery schema of the records saved in the spool
// directory to path.
func generate(path string) error {
	sch, err := bigquery.InferSchema(model.SpoolEntry{})
	if err != nil {
		return err
	}
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func main() {
	flag.Parse()
	rtx.Must(generate(esmondSchema), "failed to generate esmond schema")
}
