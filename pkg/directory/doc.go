// Package directory mirrors the authorized identity-directory group into the
// local user table.
//
// Client lists group members from a Graph-style REST API using an app-only
// client-credentials token. Syncer applies a listing: new members get the
// default role, known members are refreshed, and users missing from the group
// are deactivated. Syncs run on a claims lookup miss, on a cron schedule and
// on demand; concurrent requests share one run.
//
//	client := directory.NewClient(ctx, directory.ClientConfig{...})
//	syncer := directory.NewSyncer(client, store, directory.SyncerConfig{GroupID: gid, DefaultRole: "Viewer"})
//	scheduler, err := directory.NewScheduler(syncer, "@every 1h", logger)
package directory
