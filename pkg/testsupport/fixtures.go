package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

// testdataDir is the testdata directory of this package, so fixtures load
// the same from every test package.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// LoadFixture loads a file below testdata.
func LoadFixture(t testing.TB, name string) []byte {
	t.Helper()

	path := filepath.Join(testdataDir(), filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads a JSON fixture into dest.
func LoadFixtureJSON(t testing.TB, name string, dest any) {
	t.Helper()

	data := LoadFixture(t, name)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", name, err)
	}
}

// UserFixture returns the user service payload stored in
// testdata/users/<name>.json.
func UserFixture(t testing.TB, name string) string {
	t.Helper()
	return string(LoadFixture(t, "users/"+name+".json"))
}

// SeedUsers registers the named user fixtures on f under their id_user and
// returns those ids in order.
func SeedUsers(t testing.TB, f *FakeUserService, names ...string) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		payload := UserFixture(t, name)
		var head struct {
			ID int64 `json:"id_user"`
		}
		if err := json.Unmarshal([]byte(payload), &head); err != nil || head.ID == 0 {
			t.Fatalf("user fixture %s has no id_user: %v", name, err)
		}
		f.Put(strconv.FormatInt(head.ID, 10), payload)
		ids = append(ids, head.ID)
	}
	return ids
}
