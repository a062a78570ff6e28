// Package acquisition implements the self-describing recording format.
//
// A recording is a single CBOR map:
//
//	{
//	  "protected": {"ver": "v1", "alg": "HS256", "iat": 4564867},
//	  "signature": "0000…0000",            // 64 hex characters
//	  "payload": {
//	    "device_name": "…",
//	    "device_type": "…",
//	    "interval_ms": 10.0,
//	    "sensors": [{"name": "accX", "units": "m/s2"}, …],
//	    "values": [_ [f32, f32, …], [f32, f32, …], … ]
//	  }
//	}
//
// The header is everything up to and including the 0x9F that opens the
// indefinite-length "values" array. Rows are appended one per sample
// group as they arrive, and the array is closed by the 0xFF break byte
// that the recorder writes when it finalizes. The signature is computed
// over the whole message with the signature field holding the zero
// placeholder, then patched in when the recording is sealed.
//
// The header never ends in a zero byte, so its length can be recovered
// by scanning a zero-filled scratch buffer backward.
package acquisition
