// Package engine provides the core simulation for the cleaning agent.
//
// The engine package implements:
//   - A fixed-size grid of cell markers (clean, dirt, obstacle, agent)
//   - Random obstacle and dirt placement at configured densities
//   - The agent's scan, decide, move and spend cycle
//   - A bounded breadth-first path search toward dirt within sensor range
//   - The run loop and its termination statechart
//   - Post-run performance metrics
//
// Core Types:
//
// Environment owns the Grid and records the initial obstacle and dirt
// placement. Agent holds a non-owning handle to an Environment and mutates
// cells only through Environment.Occupy and Environment.Vacate. Simulation
// ties the two together with a statekit machine that moves from running to
// exactly one of goal_complete, idle or battery_dead.
//
// Usage:
//
//	cfg := engine.DefaultRunConfig()
//	cfg.Seed = 42
//
//	sim, err := engine.NewSimulation(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result := sim.Run()
//	fmt.Println(result.Outcome, result.Metrics.Final.DirtCleaned)
//
// Determinism:
//
// Every random choice (placement shuffle, tie-breaks, search neighbour order,
// cleaning effort) draws from one injected Random. Two runs built from the
// same RunConfig, seed included, produce identical paths, energy traces and
// outcomes.
//
// Concurrency:
//
// A Simulation is single-threaded and must not be shared between goroutines.
// Independent simulations may run in parallel.
package engine
