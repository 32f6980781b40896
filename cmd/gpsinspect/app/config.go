package app

import (
	"errors"
	"flag"
	"fmt"
)

type Config struct {
	VideoPath string
	DBPath    string
	RunID     string
	FFmpeg    string
	FFprobe   string
	Verbose   bool
}

func NewConfigFromCLI(name string, args []string) (*Config, error) {
	c := &Config{}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.VideoPath, "i", "", "Path to the video to inspect")
	fs.StringVar(&c.DBPath, "db", "", "Path to the run ledger database")
	fs.StringVar(&c.RunID, "run", "", "List the files of a single run (requires -db)")
	fs.StringVar(&c.FFmpeg, "ffmpeg", "", "Path to the ffmpeg binary")
	fs.StringVar(&c.FFprobe, "ffprobe", "", "Path to the ffprobe binary")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.VideoPath == "" && c.DBPath == "" {
		err = errors.New("video path or db path is required")
	} else if c.RunID != "" && c.DBPath == "" {
		err = fmt.Errorf("run %s requires a db path", c.RunID)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
