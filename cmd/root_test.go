package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"audit", "trace", "propagate", "templates", "runs", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "recon-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAuditCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range auditCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"gl", "checks", "duplicates", "voids", "payees"} {
		assert.True(t, names[name], "expected audit subcommand %q not found", name)
	}

	flag := auditCmd.PersistentFlags().Lookup("company")
	require.NotNil(t, flag, "audit should have --company flag")
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestResolveTemplate(t *testing.T) {
	lookup := func(name string) (schema.Template, bool) {
		return schema.Lookup(name, nil)
	}
	reset := func() {
		propagateTemplate = ""
		propagateType = ""
		propagateFields = nil
	}

	t.Run("named", func(t *testing.T) {
		reset()
		propagateTemplate = "batch-date"
		tpl, err := resolveTemplate(lookup)
		require.NoError(t, err)
		assert.Equal(t, "batch-date", tpl.Name)
		assert.False(t, tpl.Custom)
	})

	t.Run("unknown name", func(t *testing.T) {
		reset()
		propagateTemplate = "nope"
		_, err := resolveTemplate(lookup)
		assert.Error(t, err)
	})

	t.Run("custom", func(t *testing.T) {
		reset()
		propagateType = "text"
		propagateFields = []string{"checks=CPAYEE", "gltrans=CDESC"}
		tpl, err := resolveTemplate(lookup)
		require.NoError(t, err)
		assert.True(t, tpl.Custom)
		assert.Equal(t, recordstore.FieldText, tpl.Type)
		assert.Equal(t, "CPAYEE", tpl.Fields["checks"])
	})

	t.Run("malformed field pair", func(t *testing.T) {
		reset()
		propagateType = "text"
		propagateFields = []string{"checksCPAYEE"}
		_, err := resolveTemplate(lookup)
		assert.Error(t, err)
	})

	t.Run("conflicting flags", func(t *testing.T) {
		reset()
		propagateTemplate = "batch-date"
		propagateType = "date"
		_, err := resolveTemplate(lookup)
		assert.Error(t, err)
	})

	t.Run("neither", func(t *testing.T) {
		reset()
		_, err := resolveTemplate(lookup)
		assert.Error(t, err)
	})
}
