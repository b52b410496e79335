// Package sim replays configured traffic phases against a single scheduler
// node and reports how its schedule evolved.
//
// Every cycle stands for one slotframe repetition and runs, in order: the
// child slot request, one allocation cycle, the uplink frames, the uplink
// slot request decision, one DAO to the parent carrying the request, and,
// when due, the Rx observations and a maintenance tick.
package sim
