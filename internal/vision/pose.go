package vision

import "math"

// EstimateYaw derives an approximate head yaw in degrees from the
// detector's 5-point landmarks (left eye, right eye, nose, left mouth,
// right mouth), using the nose's horizontal offset from the eye midline
// relative to the inter-eye distance. This is a coarse geometric proxy,
// not a pose-regression model, but it is enough to drive the anti-spoof
// gate's head-turn requirement.
func EstimateYaw(keypoints [5][2]float32) float64 {
	leftEye, rightEye, nose := keypoints[0], keypoints[1], keypoints[2]

	eyeDist := float64(rightEye[0] - leftEye[0])
	if eyeDist == 0 {
		return 0
	}

	eyeMidX := float64(leftEye[0]+rightEye[0]) / 2
	noseOffset := float64(nose[0]) - eyeMidX

	// A nose offset of half the inter-eye distance corresponds to roughly
	// a 45 degree turn for a frontal-trained landmark model.
	ratio := noseOffset / (eyeDist / 2)
	yaw := ratio * 45.0
	return math.Max(-90, math.Min(90, yaw))
}
