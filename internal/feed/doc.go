// Package feed decodes the BSON frames of the upstream push socket and
// encodes the subscribe/unsubscribe control frames sent back to it.
//
// Every data frame is a document tagged by its "event" field:
//
//	listings/add     {item, world, listings[]}
//	listings/remove  {item, world, listings[]}
//	sales/add        {item, world, sales[]}
//	sales/remove     {item, world, sales[]}
//
// A control frame names a channel, optionally narrowed to one world:
//
//	{event: "subscribe", channel: "listings/add{world=73}"}
package feed
