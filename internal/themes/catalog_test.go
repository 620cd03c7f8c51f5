package themes_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/themes"
)

func TestLoad_DefaultCatalog(t *testing.T) {
	catalog, err := themes.Load("")
	require.NoError(t, err)

	sel, err := catalog.Resolve("portrait")
	require.NoError(t, err)
	assert.Equal(t, "royal-portrait", sel.Primary.Name)
	assert.Equal(t, 13, sel.Primary.MinOutputs)
	assert.Equal(t, 4, sel.Primary.Batch())
	require.Len(t, sel.Bonus, 2)
	assert.Equal(t, "watercolor", sel.Bonus[0].Name)
	assert.Equal(t, 4, sel.Bonus[0].Batch())

	named, err := catalog.Resolve(" Name-Portrait ")
	require.NoError(t, err)
	assert.True(t, named.Primary.RequiresText)
	assert.Len(t, named.All(), 3)

	assert.Equal(t, []string{"name-portrait", "portrait"}, catalog.Products())
}

func TestResolve_UnknownProduct(t *testing.T) {
	catalog, err := themes.Load("")
	require.NoError(t, err)

	_, err = catalog.Resolve("mug")
	assert.ErrorIs(t, err, themes.ErrUnknownProduct)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "themes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
themes:
  - name: sketch
    trigger: pencil sketch
    min_outputs: 2
products:
  sketch-print:
    primary: sketch
`), 0o600))

	catalog, err := themes.Load(path)
	require.NoError(t, err)

	sel, err := catalog.Resolve("sketch-print")
	require.NoError(t, err)
	assert.Equal(t, "sketch", sel.Primary.Name)
	assert.Empty(t, sel.Bonus)
	assert.Equal(t, 2, sel.Primary.Batch())
}

func TestNew_Validation(t *testing.T) {
	base := []themes.Theme{
		{Name: "a", MinOutputs: 3},
		{Name: "b", MinOutputs: 2},
	}

	tests := []struct {
		name     string
		themes   []themes.Theme
		products map[string]themes.Product
		wantErr  string
	}{
		{
			name:    "duplicate theme",
			themes:  append(append([]themes.Theme{}, base...), themes.Theme{Name: "a", MinOutputs: 1}),
			wantErr: "duplicate theme",
		},
		{
			name:    "zero minimum",
			themes:  []themes.Theme{{Name: "z"}},
			wantErr: "min_outputs must be positive",
		},
		{
			name:     "unknown primary",
			themes:   base,
			products: map[string]themes.Product{"p": {Primary: "missing"}},
			wantErr:  "unknown primary theme",
		},
		{
			name:     "unknown bonus",
			themes:   base,
			products: map[string]themes.Product{"p": {Primary: "a", Bonus: []string{"missing"}}},
			wantErr:  "unknown bonus theme",
		},
		{
			name:     "primary reused as bonus",
			themes:   base,
			products: map[string]themes.Product{"p": {Primary: "a", Bonus: []string{"a"}}},
			wantErr:  "both primary and bonus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := themes.New(tt.themes, tt.products)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
