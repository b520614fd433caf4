// Package automation runs the coordinator's control loop.
//
// Every tick the loop takes a registry snapshot, pairs each sensor with the
// actuator named by its related_device, and asks the pair's rule whether the
// actuator should change:
//
//	temperature -> air_conditioner  on at target above high, off below low
//	luminosity  -> lamp             on below low, off above high
//	presence    -> door             open on presence, closed otherwise
//
// Rules are pure functions over two records, so they are tested without a
// loop. Decisions go to a Dispatcher; a failed dispatch is not retried
// within the tick but is re-evaluated on the next one, since the registry
// still shows the old state.
//
// # Usage
//
//	loop := automation.NewLoop(registry, dispatcher, cfg.Automation,
//	    automation.WithLogger(log),
//	    automation.WithBroadcaster(hub),
//	)
//	go loop.Run(ctx)
package automation
