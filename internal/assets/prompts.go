package assets

// IntensityClauseFormat is appended to every preset prompt. The single %d verb
// receives the intensity percentage (0-100). The model interprets the number;
// no pixel math happens locally.
const IntensityClauseFormat = "The desired intensity of this effect should be %d%%. " +
	"A value of 100%% is full strength, and a value of 0%% should result in an almost unchanged image. " +
	"Adjust the effect subtly for intermediate values."
