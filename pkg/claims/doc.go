// Package claims turns a validated bearer-token principal into an
// application identity.
//
// The Transformer looks the caller's object-id up in the user table. An
// unknown object-id forces at most MaxDirectoryResyncs directory refreshes
// before failing with *UserNotFoundError. A resolved caller gets a Level
// claim carrying the role name, and the Identity is cached per object-id:
//
//	cache := claims.NewLRUIdentityCache(10000, 8*time.Hour, metrics)
//	t := claims.NewTransformer(store, syncer, cache, claims.Config{Environment: "prod"})
//	principal, identity, err := t.Resolve(ctx, principal)
//
// RedisIdentityCache shares the cache across API instances.
package claims
