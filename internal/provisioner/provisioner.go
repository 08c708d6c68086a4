// Package provisioner implements atomic per-tenant resource provisioning
// (§4.7): object storage, relational metadata store, and vector
// collections, created in order with reverse-order rollback on any step's
// failure, plus the asymmetric keypair used to encrypt each tenant's
// derived secrets at rest. No cache namespace or cache ACL user is
// created.
package provisioner

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/nacl/box"

	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence/databases"
)

// Result is everything a tenant's control plane needs to remember after a
// successful provisioning run.
type Result struct {
	TenantID     string
	BucketPrefix string
	DatabaseName string
	PublicKey    [32]byte
	// SealedPrivateKey is the private half of the keypair, sealed to itself
	// with a fresh nonce before being handed to the caller's secret store;
	// provisioner never retains it past this call.
	SealedPrivateKey []byte
}

// Provisioner wires the per-tenant object, relational, and vector backends
// behind one atomic operation. A step is skipped when its configuration
// leaves it off: object storage unless objectCfg.Backend is "s3", the
// relational database when the admin DSN is empty, and the vector
// collections when vectorCfg.Addr is empty.
type Provisioner struct {
	objectCfg    config.ObjectStoreConfig
	relationalDSN string
	vectorCfg    config.VectorStoreConfig
}

// New returns a Provisioner bound to the shared backend configuration.
// relationalAdminDSN must be a superuser DSN able to run CREATE DATABASE.
func New(objectCfg config.ObjectStoreConfig, relationalAdminDSN string, vectorCfg config.VectorStoreConfig) *Provisioner {
	return &Provisioner{objectCfg: objectCfg, relationalDSN: relationalAdminDSN, vectorCfg: vectorCfg}
}

// rollbackStep is one already-completed step's undo action.
type rollbackStep struct {
	name string
	undo func(context.Context) error
}

// Provision creates the isolated object-store prefix, relational database,
// text/image vector collections, and secret-encryption keypair for
// tenantID. On any step's failure, already-completed steps are undone in
// reverse order and the first error encountered (provisioning or rollback)
// is returned wrapped in domain.ErrProvisioningFailed.
func (p *Provisioner) Provision(ctx context.Context, tenantID string) (Result, error) {
	var steps []rollbackStep
	rollback := func(cause error) error {
		for i := len(steps) - 1; i >= 0; i-- {
			if err := steps[i].undo(ctx); err != nil {
				return domain.Wrap(domain.ErrProvisioningFailed,
					fmt.Sprintf("provisioning failed (%v) and rollback of step %q also failed", cause, steps[i].name), err)
			}
		}
		return domain.Wrap(domain.ErrProvisioningFailed, "provisioning failed, rolled back", cause)
	}

	// Step 1: object storage prefix.
	bucketPrefix := fmt.Sprintf("tenant/%s/", tenantID)
	if p.objectCfg.Backend == "s3" {
		s3cfg := config.S3Config{
			Bucket:       p.objectCfg.BucketPrefix,
			Region:       p.objectCfg.Region,
			AccessKey:    p.objectCfg.AccessKeyID,
			SecretKey:    p.objectCfg.SecretAccessKey,
			Endpoint:     p.objectCfg.Endpoint,
			UsePathStyle: true,
			Prefix:       bucketPrefix,
		}
		store, err := objectstore.NewS3Store(ctx, s3cfg)
		if err != nil {
			return Result{}, rollback(fmt.Errorf("provision object storage: %w", err))
		}
		if err := store.Ping(ctx); err != nil {
			return Result{}, rollback(fmt.Errorf("verify object storage reachability: %w", err))
		}
		// Object storage has no create-and-destroy primitive at the prefix
		// level; rollback here is a no-op since nothing is ever written
		// under the prefix until a tenant's documents actually arrive.
		steps = append(steps, rollbackStep{name: "object storage", undo: func(context.Context) error { return nil }})
	}

	// Step 2: per-tenant relational database.
	dbName := fmt.Sprintf("tenant_%s", tenantID)
	if p.relationalDSN != "" {
		adminPool, err := pgxpool.New(ctx, p.relationalDSN)
		if err != nil {
			return Result{}, rollback(fmt.Errorf("connect to relational admin endpoint: %w", err))
		}
		defer adminPool.Close()

		if _, err := adminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %q", dbName)); err != nil {
			return Result{}, rollback(fmt.Errorf("create tenant database %s: %w", dbName, err))
		}
		steps = append(steps, rollbackStep{
			name: "relational database",
			undo: func(ctx context.Context) error {
				_, err := adminPool.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %q", dbName))
				return err
			},
		})
	}

	// Step 3: text/image vector collections.
	if p.vectorCfg.Addr != "" {
		mgr, err := databases.NewTenantVectorStores(ctx, p.vectorCfg, tenantID)
		if err != nil {
			return Result{}, rollback(fmt.Errorf("provision vector collections: %w", err))
		}
		steps = append(steps, rollbackStep{
			name: "vector collections",
			undo: func(context.Context) error {
				mgr.Close()
				return nil
			},
		})
	}

	// Step 4: asymmetric keypair for at-rest encryption of this tenant's
	// derived secrets (database credentials, bucket signing keys).
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Result{}, rollback(fmt.Errorf("generate tenant keypair: %w", err))
	}
	sealed, err := sealToSelf(pub, priv)
	if err != nil {
		return Result{}, rollback(fmt.Errorf("seal tenant private key: %w", err))
	}

	return Result{
		TenantID:         tenantID,
		BucketPrefix:     bucketPrefix,
		DatabaseName:     dbName,
		PublicKey:        *pub,
		SealedPrivateKey: sealed,
	}, nil
}

// sealToSelf encrypts priv under pub using a fresh random nonce, so the
// caller's secret store holds ciphertext rather than raw key material.
// This package has no matching Open.
func sealToSelf(pub *[32]byte, priv *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	sealed := box.Seal(nonce[:], priv[:], &nonce, pub, priv)
	return sealed, nil
}
