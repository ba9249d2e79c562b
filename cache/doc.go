// Package cache is a keyed TTL store with in-memory, Redis and SQLite
// backends behind one [Cache] interface.
//
// [NewInMemory] keeps values as is. [NewRedis] and [NewSQLite] encode values
// with msgpack, so struct fields must be exported to survive a round trip.
// [NewComposite] layers backends, for example an in-memory tier in front of
// Redis.
//
// The generic [Get] hides the difference between backends:
//
//	found, lines, err := cache.Get[map[string]int](ctx, c, "cart:"+id)
//
// [Exec] is the read-through form used for values loaded from the remote
// store:
//
//	found, val, err := cache.Exec(ctx, cache.CacheConfig{Key: "setting:site_name"}, c,
//	    func(ctx context.Context) (string, bool, error) {
//	        return remote.GetSetting(ctx, "site_name")
//	    },
//	)
//
// A found=false result from the invoker is not cached.
package cache
