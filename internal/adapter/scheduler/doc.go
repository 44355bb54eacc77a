// Package scheduler evaluates cron expressions on top of robfig/cron.
//
// One Scheduler owns the cron timer loop; each job gets its own Entry that
// can be armed, stopped, triggered manually and asked whether it is busy:
//
//	s := scheduler.New(scheduler.Config{Logger: log, Location: time.UTC})
//	s.Start()
//
//	e, err := s.NewEntry("backup", "0 3 * * *", func(ctx context.Context) {
//	    runBackup(ctx)
//	})
//	if err != nil {
//	    return err
//	}
//	e.Start()
//	defer e.Stop()
//
// Expressions accept an optional leading seconds field and descriptors such
// as @hourly or @every 5m.
//
// Stopping an Entry only removes its timer. Scheduler.Stop waits for every
// running body, including manual triggers, until the context expires.
package scheduler
