// esmond-archiver reads an archive request from stdin and writes the
// verdict to stdout. With -validate, it reads an archiver configuration
// block instead and writes whether it is valid.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/esmond-archiver/internal/archiver"
	"github.com/m-lab/esmond-archiver/internal/handler"
	"github.com/m-lab/esmond-archiver/internal/summary"
)

const clientName = "esmond-archiver"

var (
	flagValidate  = flag.Bool("validate", false, "Validate the archiver data read from stdin")
	flagSpoolDir  = flag.String("spool.dir", "", "Directory where abandoned records are saved")
	flagSummaries = flag.String("summaries", "", "YAML file replacing the default summaries")
	flagLogLevel  = flag.String("log.level", "warn", "Log level (debug|info|warn|error)")
	flagTimeout   = flag.Duration("timeout", time.Minute, "Maximum time spent archiving")

	// Set at build time.
	version = "dev"
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")

	// stdout carries the response, so logs go to stderr.
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	level, err := log.ParseLevel(*flagLogLevel)
	rtx.Must(err, "Invalid log level")
	log.SetLevel(level)

	if *flagValidate {
		rtx.Must(validate(os.Stdin, os.Stdout), "Could not validate")
		return
	}

	opts := archiver.Options{
		ClientName:    clientName,
		ClientVersion: version,
		SpoolDir:      *flagSpoolDir,
	}
	if *flagSummaries != "" {
		opts.Summaries, err = summary.LoadFile(*flagSummaries)
		rtx.Must(err, "Could not load summaries")
	}
	a := archiver.New(opts)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()
	rtx.Must(archive(ctx, a, os.Stdin, os.Stdout), "Could not archive")
}

func archive(ctx context.Context, a handler.Archiver, in io.Reader, out io.Writer) error {
	req, err := archiver.DecodeRequest(in)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(a.Archive(ctx, req))
}

func validate(in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return err
	}
	v := handler.Validation{Valid: true}
	if err := archiver.Validate(data); err != nil {
		v = handler.Validation{Error: err.Error()}
	}
	return json.NewEncoder(out).Encode(v)
}
