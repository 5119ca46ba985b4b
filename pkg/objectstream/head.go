package objectstream

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// head is the small persisted object holding a stream's positions and
// layout (spec.md §6, "write_head/reread_head persist or reload the
// journal's head object").
type head struct {
	ExpirePos uint64 `yaml:"expire_pos"`
	ReadPos   uint64 `yaml:"read_pos"`
	WritePos  uint64 `yaml:"write_pos"`
	Format    int    `yaml:"format"`
	PoolName  string `yaml:"pool_name"`
	Period    int64  `yaml:"period"`
}

func loadHead(path string) (head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return head{}, err
	}
	var h head
	if err := yaml.Unmarshal(data, &h); err != nil {
		return head{}, err
	}
	return h, nil
}

// saveHead writes through a uniquely-named staging file before renaming it
// into place, so two reformat attempts racing on the same head object (the
// old journal's recovery thread and a freshly spawned one after a crash)
// never clobber each other's partial write.
func saveHead(path string, h head) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
