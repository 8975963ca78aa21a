package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/opserr"
)

// EtcdCheckpointer keeps the most recent per-domain curriculum state in
// etcd under a leased key, so a crashed controller's last checkpoint is
// distinguishable from one that is still actively being written: the
// lease only survives while something is renewing it.
type EtcdCheckpointer struct {
	client    *clientv3.Client
	namespace string
	ttl       int64

	leaseID clientv3.LeaseID
}

// NewEtcdCheckpointer grants a lease for the checkpoint key space and
// starts a background keepalive so the lease (and thus every state it
// backs) stays live for as long as this process runs.
func NewEtcdCheckpointer(ctx context.Context, cli *clientv3.Client, namespace string, ttlSeconds int64) (*EtcdCheckpointer, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}

	leaseResp, err := cli.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, opserr.New("store", "new_etcd_checkpointer", opserr.CodePersistenceWrite,
			"failed to grant checkpoint lease").WithCause(err)
	}

	keepalive, err := cli.KeepAlive(context.Background(), leaseResp.ID)
	if err != nil {
		return nil, opserr.New("store", "new_etcd_checkpointer", opserr.CodePersistenceWrite,
			"failed to start checkpoint lease keepalive").WithCause(err)
	}
	go func() {
		for range keepalive {
			// Drain keepalive responses; the lease renews itself as long
			// as this channel is read. Nothing to act on per-beat.
		}
	}()

	return &EtcdCheckpointer{client: cli, namespace: namespace, ttl: ttlSeconds, leaseID: leaseResp.ID}, nil
}

func (c *EtcdCheckpointer) key(domain string) string {
	return fmt.Sprintf("/%s/curriculum/%s/checkpoint", c.namespace, domain)
}

// SaveCheckpoint overwrites the domain's keyed checkpoint, attached to
// this process's lease. If the process dies and stops renewing, the key
// expires instead of silently going stale.
func (c *EtcdCheckpointer) SaveCheckpoint(ctx context.Context, state *curriculum.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return opserr.New("store", "save_checkpoint", opserr.CodePersistenceWrite,
			"failed to marshal curriculum state").WithCause(err)
	}

	putCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = c.client.Put(putCtx, c.key(state.Domain), string(data), clientv3.WithLease(c.leaseID))
	if err != nil {
		return opserr.New("store", "save_checkpoint", opserr.CodePersistenceWrite,
			"failed to put curriculum checkpoint").WithCause(err)
	}
	return nil
}

// LoadCheckpoint returns the domain's keyed checkpoint, or (nil, nil) if
// none exists (either never written, or its lease already expired).
func (c *EtcdCheckpointer) LoadCheckpoint(ctx context.Context, domain string) (*curriculum.State, error) {
	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.client.Get(getCtx, c.key(domain))
	if err != nil {
		return nil, opserr.New("store", "load_checkpoint", opserr.CodePersistenceWrite,
			"failed to get curriculum checkpoint").WithCause(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var state curriculum.State
	if err := json.Unmarshal(resp.Kvs[0].Value, &state); err != nil {
		return nil, opserr.New("store", "load_checkpoint", opserr.CodePersistenceWrite,
			"failed to parse curriculum checkpoint").WithCause(err)
	}
	return &state, nil
}

// Close revokes the checkpoint lease; etcd deletes every key attached to
// it as part of the revoke.
func (c *EtcdCheckpointer) Close(ctx context.Context) error {
	_, err := c.client.Revoke(ctx, c.leaseID)
	if err != nil {
		return opserr.New("store", "close_etcd_checkpointer", opserr.CodePersistenceWrite,
			"failed to revoke checkpoint lease").WithCause(err)
	}
	return nil
}
