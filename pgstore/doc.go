// Package pgstore is a PostgreSQL implementation of [goOTP.CredentialStore]
// built on pgx/v5.
//
// Credentials live in otp_credentials and backup code hashes in
// otp_backup_codes; [Migrate] creates both. Consuming a backup code is a
// single conditional UPDATE on used_at, so two concurrent attempts on the
// same code cannot both succeed.
//
// Lockout counters and alternate-channel challenges stay in Redis; pair this
// store with Builder.WithRedis as usual:
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	...
//	engine, err := goOTP.New().
//		WithRedis(rdb).
//		WithCredentialStore(pgstore.New(pool)).
//		Build()
package pgstore
