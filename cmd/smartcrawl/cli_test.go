package main_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	main "github.com/fwojciec/smartcrawl/cmd/smartcrawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commands = []string{"crawl", "resume", "status", "sessions", "stop", "proxy"}

func TestCLI_HelpShowsAllCommands(t *testing.T) {
	t.Parallel()

	cli := &main.CLI{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	parser, err := kong.New(cli,
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	require.NoError(t, err)

	_, _ = parser.Parse([]string{"--help"})

	for _, cmd := range commands {
		assert.Contains(t, stdout.String(), cmd, "Help should mention %s command", cmd)
	}
}

func TestCLI_ParsesCrawlFlags(t *testing.T) {
	t.Parallel()

	cli := &main.CLI{}
	parser, err := kong.New(cli, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{
		"crawl", "https://example.com/", "https://example.com/blog",
		"--max-depth", "3", "--scope", "any", "--delay", "250ms", "-x", "/private/",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/blog"}, cli.Crawl.URLs)
	require.NotNil(t, cli.Crawl.MaxDepth)
	assert.Equal(t, 3, *cli.Crawl.MaxDepth)
	require.NotNil(t, cli.Crawl.Scope)
	assert.Equal(t, "any", *cli.Crawl.Scope)
	require.NotNil(t, cli.Crawl.Delay)
	assert.Equal(t, "250ms", cli.Crawl.Delay.String())
	assert.Equal(t, []string{"/private/"}, cli.Crawl.Exclude)
	assert.Nil(t, cli.Crawl.MaxURLs, "unset flags stay nil")
}

func TestMain_Run_Help(t *testing.T) {
	t.Parallel()

	t.Run("help shows kong output", func(t *testing.T) {
		t.Parallel()

		m := main.NewMain()
		m.DBPath = filepath.Join(t.TempDir(), "test.db")
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"--help"}, stdout, stderr)
		require.NoError(t, err)

		for _, cmd := range commands {
			assert.Contains(t, stdout.String(), cmd)
		}
	})

	t.Run("no arguments is an error", func(t *testing.T) {
		t.Parallel()

		m := main.NewMain()
		m.DBPath = filepath.Join(t.TempDir(), "test.db")

		err := m.Run(context.Background(), nil, &bytes.Buffer{}, &bytes.Buffer{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no command specified")
	})
}
