package rotation

import (
	"context"
	"fmt"
	"log/slog"

	"crosstalk/go-backend/internal/directory"
	"crosstalk/go-backend/internal/keystore"
	"crosstalk/go-backend/pkg/models"
)

// Controller replaces an identity's key material and republishes the new
// public half. Rotation is forward-only: messages encrypted under the old
// key become undecryptable once the old key is discarded.
type Controller struct {
	keys   *keystore.Store
	dir    *directory.Client
	logger *slog.Logger
}

func NewController(keys *keystore.Store, dir *directory.Client, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{keys: keys, dir: dir, logger: logger}
}

// RotateKeys generates and persists brand-new identity and signing pairs,
// then publishes through the dedicated rotation endpoint and invalidates
// cached resolutions. When the remote publish fails the new pair is still
// returned and retained locally with the fallback registry updated; the
// wrapped directory.ErrUnavailable tells the caller to retry the publish.
func (c *Controller) RotateKeys(ctx context.Context, address string) (models.IdentityKeyPair, error) {
	pair, signingPair, err := c.keys.ReplaceKeys(ctx, address)
	if err != nil {
		return models.IdentityKeyPair{}, fmt.Errorf("rotate keys: %w", err)
	}

	if err := c.dir.PublishRotation(ctx, address, pair.PublicKey, signingPair.SigningPublicKey); err != nil {
		c.logger.Warn("rotation publish failed, new keys retained locally", "address", address, "reason", err.Error())
		return pair, err
	}
	c.logger.Info("keys rotated", "address", address)
	return pair, nil
}
