package dts

// channelCountTable maps the Core header's AMODE field to a base channel
// count, before the LFE channel (if present) is added.
var channelCountTable = [10]int{1, 2, 2, 2, 2, 3, 3, 4, 4, 5}

// coreSampleRateTable maps the Core header's SFREQ field to a sample rate
// in Hz. Index 0 and reserved entries are 0 (invalid).
var coreSampleRateTable = [16]int{
	0, 8000, 16000, 32000, 0,
	0, 11025, 22050, 44100, 0,
	0, 12000, 24000, 48000, 0, 0,
}

// exssSampleRateTable maps an ExSS asset descriptor's sample-rate index to
// a sample rate in Hz.
var exssSampleRateTable = [16]int{
	8000, 16000, 32000, 64000, 128000,
	22050, 44100, 88200, 176400, 352800,
	12000, 24000, 48000, 96000, 192000, 384000,
}

// refClockTable maps the ExSS static-fields block's nuRefClockCode to a
// reference clock rate in Hz, used as the denominator when converting the
// extension substream frame duration code into a sample count.
var refClockTable = [4]int{32000, 44100, 48000, 0x7FFFFFFF}
