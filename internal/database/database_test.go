package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "databases", "database.bolt"), Options{CacheSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// frame returns atoms*3 values encoding atom, configuration and dimension.
func frame(c, atoms int) []float64 {
	out := make([]float64, 0, atoms*3)
	for a := 0; a < atoms; a++ {
		for d := 0; d < 3; d++ {
			out = append(out, float64(100*a+10*c+d))
		}
	}
	return out
}

func TestAppendLoad(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Na/Positions", 2, 3))

	n, err := db.Append("Na/Positions", [][]float64{frame(0, 2), frame(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.Append("Na/Positions", [][]float64{frame(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tensor, err := db.Load("Na/Positions", 1, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tensor.Atoms)
	assert.Equal(t, 2, tensor.Configs)
	assert.Equal(t, 3, tensor.Dim)
	assert.Equal(t, 112.0, tensor.At(1, 0, 2))
	assert.Equal(t, 20.0, tensor.At(0, 1, 0))

	sel, err := db.Load("Na/Positions", 0, 3, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102, 110, 111, 112, 120, 121, 122}, sel.Series(0))
}

func TestLoadConfigurations(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Cl/Positions", 1, 3))
	for c := 0; c < 5; c++ {
		_, err := db.Append("Cl/Positions", [][]float64{frame(c, 1)})
		require.NoError(t, err)
	}

	tensor, err := db.LoadConfigurations("Cl/Positions", []int{4, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 40.0, tensor.At(0, 0, 0))
	assert.Equal(t, 0.0, tensor.At(0, 1, 0))
}

func TestWriteOverwrite(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Na/Velocities", 1, 3))
	_, err := db.Append("Na/Velocities", [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	_, err = db.Load("Na/Velocities", 0, 2, nil)
	require.NoError(t, err)

	n, err := db.Write("Na/Velocities", 1, [][]float64{{7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tensor, err := db.Load("Na/Velocities", 1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, tensor.Data)
}

func TestTruncate(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Na/Positions", 2, 3))
	for c := 0; c < 5; c++ {
		_, err := db.Append("Na/Positions", [][]float64{frame(c, 2)})
		require.NoError(t, err)
	}
	// fill the cache with the frames about to be dropped
	_, err := db.Load("Na/Positions", 0, 5, nil)
	require.NoError(t, err)

	require.NoError(t, db.Truncate("Na/Positions", 2))
	info, err := db.Info("Na/Positions")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Configurations)
	_, err = db.Load("Na/Positions", 0, 3, nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	n, err := db.Append("Na/Positions", [][]float64{frame(9, 2)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	tensor, err := db.Load("Na/Positions", 2, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, frame(9, 2), tensor.Data)

	assert.NoError(t, db.Truncate("Na/Positions", 10))
	assert.ErrorIs(t, db.Truncate("Na/Positions", -1), ErrOutOfRange)
	assert.ErrorIs(t, db.Truncate("K/Positions", 0), ErrNotFound)
}

func TestCacheSkipsReadsOlderThanAWrite(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Na/Velocities", 1, 3))
	_, err := db.Append("Na/Velocities", [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	// a reader that began before the overwrite committed
	gen := db.generation()
	_, err = db.Write("Na/Velocities", 0, [][]float64{{7, 8, 9}})
	require.NoError(t, err)
	db.remember(gen, cacheKey("Na/Velocities", 0), []float64{1, 2, 3})

	tensor, err := db.Load("Na/Velocities", 0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, tensor.Data)
}

func TestErrors(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("Na/Positions", 2, 3))

	assert.ErrorIs(t, db.AddDataset("Na/Positions", 3, 3), ErrShapeMismatch)
	assert.NoError(t, db.AddDataset("Na/Positions", 2, 3))
	assert.ErrorIs(t, db.AddDataset("Positions", 2, 3), ErrBadPath)

	_, err := db.Load("Na/Positions", 0, 1, nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = db.Load("K/Positions", 0, 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.Append("Na/Positions", [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = db.Write("Na/Positions", 5, [][]float64{frame(0, 2)})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDatasetsAndRename(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.AddDataset("1/Positions", 1, 3))
	require.NoError(t, db.AddDataset("1/Velocities", 1, 3))
	require.NoError(t, db.AddDataset("2/Positions", 1, 3))
	_, err := db.Append("1/Positions", [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	require.NoError(t, db.RenameGroup("1", "Na"))
	assert.ErrorIs(t, db.RenameGroup("2", "Na"), ErrExists)

	infos, err := db.Datasets()
	require.NoError(t, err)
	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}
	assert.Equal(t, []string{"2/Positions", "Na/Positions", "Na/Velocities"}, paths)

	tensor, err := db.Load("Na/Positions", 0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, tensor.Data)

	groups, err := db.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "Na"}, groups)

	require.NoError(t, db.Delete("2/Positions"))
	assert.False(t, db.Exists("2/Positions"))
	groups, err = db.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"Na"}, groups)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.bolt")
	db, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.AddDataset("Na/Positions", 1, 3))
	_, err = db.Append("Na/Positions", [][]float64{{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, Options{})
	require.NoError(t, err)
	defer db.Close()

	info, err := db.Info("Na/Positions")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Configurations)

	size, err := db.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}

func TestTensorFrames(t *testing.T) {
	tensor := NewTensor(2, 2, 1)
	tensor.Set(0, 0, 0, 1)
	tensor.Set(1, 0, 0, 2)
	tensor.Set(0, 1, 0, 3)
	tensor.Set(1, 1, 0, 4)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, tensor.Frames())
}
