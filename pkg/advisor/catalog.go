package advisor

// CropTypes are the crops offered in the residue form.
var CropTypes = []string{
	"Rice", "Wheat", "Sugarcane", "Cotton", "Maize", "Soybean",
	"Groundnut", "Mustard", "Potato", "Tomato", "Other",
}

var ResidueTypes = []string{"Straw", "Stalks", "Husks", "Leaves", "Roots", "Shells", "Other"}

// ReuseMethod is one way of turning residue into income. RatePerKg is the
// estimated income for each kilogram of residue put to this use.
type ReuseMethod struct {
	Name      string   `json:"name"`
	RatePerKg float64  `json:"rate_per_kg"`
	Steps     []string `json:"steps"`
}

// ReuseMethods lists the methods in the order they are recommended.
var ReuseMethods = []ReuseMethod{
	{
		Name:      "Composting",
		RatePerKg: 2.5,
		Steps: []string{
			"Collect and shred the residue into small pieces",
			"Mix with green materials in 3:1 ratio (brown:green)",
			"Add water to maintain 50-60% moisture",
			"Turn the pile every 2-3 weeks",
			"Compost will be ready in 2-3 months",
		},
	},
	{
		Name:      "Biofuel Production",
		RatePerKg: 3.2,
		Steps: []string{
			"Dry the residue to reduce moisture to 10-15%",
			"Store in a dry place away from rain",
			"Contact local biofuel collection centers",
			"Arrange for pickup or delivery",
			"Receive payment based on dry weight",
		},
	},
	{
		Name:      "Animal Feed",
		RatePerKg: 1.8,
		Steps: []string{
			"Ensure residue is free from pesticide contamination",
			"Chop into small digestible pieces",
			"Mix with other feed components as needed",
			"Store in dry ventilated area",
			"Can be sold to local dairy farmers",
		},
	},
	{
		Name:      "Mushroom Farming",
		RatePerKg: 15,
		Steps: []string{
			"Sterilize the straw/residue thoroughly",
			"Prepare spawn and inoculate the substrate",
			"Maintain humidity at 80-90%",
			"Keep temperature between 20-28°C",
			"Harvest mushrooms in 3-4 weeks",
		},
	},
}

// diagnoses are the canned classifier outcomes. An empty Disease is a healthy crop.
var diagnoses = []Diagnosis{
	{
		Disease:    "Late Blight",
		CropType:   "Tomato",
		Confidence: 87.5,
		TreatmentSteps: []string{
			"Remove infected leaves immediately",
			"Apply copper-based fungicide",
			"Improve air circulation",
			"Water at base, not leaves",
		},
		Pesticide: "Mancozeb 75% WP @ 2g/L or Copper Oxychloride @ 3g/L",
		PreventionTips: []string{
			"Use disease-resistant varieties",
			"Maintain proper spacing",
			"Avoid overhead irrigation",
			"Remove crop debris after harvest",
		},
	},
	{
		Disease:        "Powdery Mildew",
		CropType:       "Wheat",
		Confidence:     92.3,
		TreatmentSteps: []string{"Apply sulfur-based fungicide", "Prune affected areas", "Increase air circulation"},
		Pesticide:      "Sulfur 80% WP @ 2.5g/L or Triadimefon @ 1g/L",
		PreventionTips: []string{"Plant resistant varieties", "Avoid overcrowding", "Water in morning"},
	},
	{
		CropType:       "Rice",
		Confidence:     95.8,
		TreatmentSteps: []string{},
		Pesticide:      "No treatment needed - crop appears healthy",
		PreventionTips: []string{"Continue good farming practices", "Monitor regularly"},
	},
}
