package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mesosphere/svc-scheduler/pkg/storage"
	"github.com/mesosphere/svc-scheduler/pkg/types"
)

const pathConfigTarget = "/ConfigTarget"

func configPath(id string) string { return "/Configurations/" + id }

// ConfigStore persists ServiceSpec revisions, each addressed by a uuid, plus
// a single pointer (/ConfigTarget) naming the revision the scheduler is
// currently trying to converge on.
type ConfigStore struct {
	backing storage.PersistentStore
}

// NewConfigStore wraps a PersistentStore as a ConfigStore.
func NewConfigStore(backing storage.PersistentStore) *ConfigStore {
	return &ConfigStore{backing: backing}
}

// Store persists a ServiceSpec under a freshly minted id and returns it.
func (c *ConfigStore) Store(spec *types.ServiceSpec) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("%w: marshal ServiceSpec %s: %v", types.ErrStorage, id, err)
	}
	if err := c.backing.Set(configPath(id), data); err != nil {
		return "", err
	}
	return id, nil
}

// Fetch returns the ServiceSpec revision identified by id.
func (c *ConfigStore) Fetch(id string) (*types.ServiceSpec, error) {
	data, err := c.backing.Get(configPath(id))
	if err != nil {
		return nil, err
	}
	var spec types.ServiceSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ServiceSpec %s: %v", types.ErrStorage, id, err)
	}
	return &spec, nil
}

// SetTargetConfig records which revision id is the current deployment
// target.
func (c *ConfigStore) SetTargetConfig(id string) error {
	return c.backing.Set(pathConfigTarget, []byte(id))
}

// GetTargetConfig returns the current target revision id.
func (c *ConfigStore) GetTargetConfig() (string, error) {
	data, err := c.backing.Get(pathConfigTarget)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns every stored revision id, oldest first by insertion is not
// tracked here, so callers that need recency order should keep it
// separately; List only guarantees a stable lexical order.
func (c *ConfigStore) List() ([]string, error) {
	ids, err := c.backing.List("/Configurations")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune deletes every stored revision whose id is not in keep. The target
// revision is not kept automatically: it survives only if the caller puts
// its id in keep. This bounds /Configurations from growing once per every
// deploy call.
func (c *ConfigStore) Prune(keep map[string]struct{}) error {
	ids, err := c.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := c.backing.Delete(configPath(id)); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}
