package imports_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyroslabs/vita-elf-create/internal/imports"
)

const validDoc = `{
	"schema_version": "1.0.0",
	"libraries": [
		{
			"name": "SceLibKernel",
			"nid": 1069,
			"modules": [
				{
					"name": "SceLibKernel",
					"nid": 2106,
					"functions": [
						{"name": "sceKernelExitProcess", "nid": 3003}
					],
					"variables": [
						{"name": "sceKernelErrno", "nid": 4004}
					]
				}
			]
		}
	]
}`

func TestLoadJSONSuccess(t *testing.T) {
	db, err := imports.LoadJSON(strings.NewReader(validDoc))
	require.NoError(t, err)

	lib, ok := db.FindLib(1069)
	require.True(t, ok)
	assert.Equal(t, "SceLibKernel", lib.Name)

	mod, ok := db.FindModule(lib, 2106)
	require.True(t, ok)
	assert.Equal(t, "SceLibKernel", mod.Name)

	fn, ok := db.FindFunction(mod, 3003)
	require.True(t, ok)
	assert.Equal(t, "sceKernelExitProcess", fn.Name)

	v, ok := db.FindVariable(mod, 4004)
	require.True(t, ok)
	assert.Equal(t, "sceKernelErrno", v.Name)

	_, ok = db.FindFunction(mod, 9999)
	assert.False(t, ok)
}

func TestLoadJSONRejectsUnsupportedSchema(t *testing.T) {
	doc := `{"schema_version": "2.0.0", "libraries": []}`
	_, err := imports.LoadJSON(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoadJSONRejectsMalformedVersion(t *testing.T) {
	doc := `{"schema_version": "not-a-version", "libraries": []}`
	_, err := imports.LoadJSON(strings.NewReader(doc))
	require.Error(t, err)
}
