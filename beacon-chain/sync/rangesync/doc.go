// Package rangesync implements the range-sync core of a beacon node: it
// catches the local chain up to a head advertised by peers by downloading,
// validating and importing long ranges of signed blocks.
//
// A RangeSync groups peer status updates into finalized-sync and head-sync
// candidates and maintains one SyncChain per distinct target. Each SyncChain
// owns an ordered set of Batches and runs a downloader loop and a processor
// loop cooperatively: the downloader keeps idle peers fed with
// beacon_blocks_by_range requests, while the processor feeds downloaded
// batches to the external chain in strict epoch order.
package rangesync
