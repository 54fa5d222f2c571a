package queries

import "krishismart/pkg/querycache"

const (
	KindAdvisories             = "advisories"
	KindCropAnalyses           = "crop-analyses"
	KindResidueRecommendations = "residue-recommendations"
	KindProfile                = "profile"
)

// UserSource names the signed-in user; "" means nobody is signed in.
// *session.Session implements it.
type UserSource interface {
	UserID() string
}

// FixedUser is a UserSource for background jobs acting on behalf of one user.
type FixedUser string

func (u FixedUser) UserID() string { return string(u) }

func userID(us UserSource) string {
	if us == nil {
		return ""
	}
	return us.UserID()
}

func advisoriesKey() querycache.Key { return querycache.Key{Kind: KindAdvisories} }

func cropAnalysesKey(uid string) querycache.Key {
	return querycache.Key{Kind: KindCropAnalyses, UserID: uid}
}

func residueKey(uid string) querycache.Key {
	return querycache.Key{Kind: KindResidueRecommendations, UserID: uid}
}

func profileKey(uid string) querycache.Key { return querycache.Key{Kind: KindProfile, UserID: uid} }
