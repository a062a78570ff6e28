// Package recorder implements the signed streaming sample recorder.
//
// A Controller runs one recording session at a time:
//
//  1. erase the storage region the recording may occupy
//  2. encode the header into a zero-filled scratch buffer, size it by
//     scanning back for the last non-zero byte, and program it at offset 0
//  3. wait out the settle delay, then start the sensor driver
//  4. append each delivered sample group through the word-aligned writer
//  5. when the required number of groups has arrived, pad the last word,
//     append the terminator word, and finish the streaming signature
//  6. hand the recording to the uploader
//
// Storage layout after a successful session:
//
//	[0, H)        header
//	[H, H+W)      payload words, last word padded with 0xFF
//	[H+W, H+W+4)  terminator word 0xFFFFFFFF
//
// Every byte of the message, header included, is fed to the signer as it
// is produced, so the recording is never held in memory as a whole.
package recorder
