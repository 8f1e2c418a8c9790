package localization

import "golang.org/x/text/language"

// Notification keys. Arguments: registration ID, institution, from, to.
const (
	KeyRegistrationSubmitted       = "notification.registration.submitted"
	KeyRegistrationUnderReview     = "notification.registration.under_review"
	KeyRegistrationApproved        = "notification.registration.approved"
	KeyRegistrationRejected        = "notification.registration.rejected"
	KeyRegistrationReturnedForEdit = "notification.registration.returned_for_edit"
	KeyRegistrationReopened        = "notification.registration.reopened"
	KeyRegistrationArchived        = "notification.registration.archived"
	KeyRegistrationStatusChanged   = "notification.registration.status_changed"
)

// SubjectKey is the subject line key paired with a notification body key.
func SubjectKey(key string) string { return key + ".subject" }

var translations = map[language.Tag]map[string]string{
	language.English: {
		"error.bad_request":          "The request is malformed.",
		"error.validation_error":     "The request contains invalid values.",
		"error.invalid_input":        "The request contains invalid values.",
		"error.unauthorized":         "Authentication is required.",
		"error.forbidden":            "You do not have permission to perform this action.",
		"error.insufficient_role":    "Your roles do not allow this status change.",
		"error.not_found":            "The requested resource was not found.",
		"error.conflict":             "The resource already exists.",
		"error.concurrency_conflict": "The registration was changed by someone else. Reload and try again.",
		"error.illegal_transition":   "This status change is not allowed by the workflow.",
		"error.invariant_violation":  "The operation would leave the resource in an invalid state.",
		"error.timeout":              "The operation timed out.",

		SubjectKey(KeyRegistrationSubmitted):       "Registration submitted",
		KeyRegistrationSubmitted:                   "Registration %[1]s for %[2]s was submitted for review.",
		SubjectKey(KeyRegistrationUnderReview):     "Registration under review",
		KeyRegistrationUnderReview:                 "Registration %[1]s for %[2]s is now under review.",
		SubjectKey(KeyRegistrationApproved):        "Registration approved",
		KeyRegistrationApproved:                    "Registration %[1]s for %[2]s was approved.",
		SubjectKey(KeyRegistrationRejected):        "Registration rejected",
		KeyRegistrationRejected:                    "Registration %[1]s for %[2]s was rejected.",
		SubjectKey(KeyRegistrationReturnedForEdit): "Registration returned for edit",
		KeyRegistrationReturnedForEdit:             "Registration %[1]s for %[2]s was returned for edit.",
		SubjectKey(KeyRegistrationReopened):        "Registration reopened",
		KeyRegistrationReopened:                    "Registration %[1]s for %[2]s is back in draft.",
		SubjectKey(KeyRegistrationArchived):        "Registration archived",
		KeyRegistrationArchived:                    "Registration %[1]s for %[2]s was archived.",
		SubjectKey(KeyRegistrationStatusChanged):   "Registration status changed",
		KeyRegistrationStatusChanged:               "Registration %[1]s for %[2]s moved from %[3]s to %[4]s.",
	},
	language.French: {
		"error.bad_request":          "La requête est mal formée.",
		"error.validation_error":     "La requête contient des valeurs invalides.",
		"error.invalid_input":        "La requête contient des valeurs invalides.",
		"error.unauthorized":         "Une authentification est requise.",
		"error.forbidden":            "Vous n'avez pas l'autorisation d'effectuer cette action.",
		"error.insufficient_role":    "Vos rôles ne permettent pas ce changement de statut.",
		"error.not_found":            "La ressource demandée est introuvable.",
		"error.conflict":             "La ressource existe déjà.",
		"error.concurrency_conflict": "L'enregistrement a été modifié par quelqu'un d'autre. Rechargez et réessayez.",
		"error.illegal_transition":   "Ce changement de statut n'est pas autorisé par le circuit de validation.",
		"error.invariant_violation":  "L'opération laisserait la ressource dans un état invalide.",
		"error.timeout":              "L'opération a expiré.",

		SubjectKey(KeyRegistrationSubmitted):       "Enregistrement soumis",
		KeyRegistrationSubmitted:                   "L'enregistrement %[1]s pour %[2]s a été soumis pour examen.",
		SubjectKey(KeyRegistrationUnderReview):     "Enregistrement en cours d'examen",
		KeyRegistrationUnderReview:                 "L'enregistrement %[1]s pour %[2]s est en cours d'examen.",
		SubjectKey(KeyRegistrationApproved):        "Enregistrement approuvé",
		KeyRegistrationApproved:                    "L'enregistrement %[1]s pour %[2]s a été approuvé.",
		SubjectKey(KeyRegistrationRejected):        "Enregistrement rejeté",
		KeyRegistrationRejected:                    "L'enregistrement %[1]s pour %[2]s a été rejeté.",
		SubjectKey(KeyRegistrationReturnedForEdit): "Enregistrement renvoyé pour modification",
		KeyRegistrationReturnedForEdit:             "L'enregistrement %[1]s pour %[2]s a été renvoyé pour modification.",
		SubjectKey(KeyRegistrationReopened):        "Enregistrement rouvert",
		KeyRegistrationReopened:                    "L'enregistrement %[1]s pour %[2]s est repassé en brouillon.",
		SubjectKey(KeyRegistrationArchived):        "Enregistrement archivé",
		KeyRegistrationArchived:                    "L'enregistrement %[1]s pour %[2]s a été archivé.",
		SubjectKey(KeyRegistrationStatusChanged):   "Statut de l'enregistrement modifié",
		KeyRegistrationStatusChanged:               "L'enregistrement %[1]s pour %[2]s est passé de %[3]s à %[4]s.",
	},
	language.Arabic: {
		"error.bad_request":          "الطلب غير صالح.",
		"error.validation_error":     "يحتوي الطلب على قيم غير صالحة.",
		"error.invalid_input":        "يحتوي الطلب على قيم غير صالحة.",
		"error.unauthorized":         "يلزم تسجيل الدخول.",
		"error.forbidden":            "ليست لديك صلاحية لتنفيذ هذا الإجراء.",
		"error.insufficient_role":    "أدوارك لا تسمح بتغيير الحالة هذا.",
		"error.not_found":            "المورد المطلوب غير موجود.",
		"error.conflict":             "المورد موجود بالفعل.",
		"error.concurrency_conflict": "تم تعديل التسجيل من قبل مستخدم آخر. أعد التحميل وحاول مرة أخرى.",
		"error.illegal_transition":   "تغيير الحالة هذا غير مسموح به في مسار العمل.",
		"error.invariant_violation":  "ستترك العملية المورد في حالة غير صالحة.",
		"error.timeout":              "انتهت مهلة العملية.",

		SubjectKey(KeyRegistrationSubmitted):       "تم تقديم التسجيل",
		KeyRegistrationSubmitted:                   "تم تقديم التسجيل %[1]s الخاص بـ %[2]s للمراجعة.",
		SubjectKey(KeyRegistrationUnderReview):     "التسجيل قيد المراجعة",
		KeyRegistrationUnderReview:                 "التسجيل %[1]s الخاص بـ %[2]s قيد المراجعة الآن.",
		SubjectKey(KeyRegistrationApproved):        "تمت الموافقة على التسجيل",
		KeyRegistrationApproved:                    "تمت الموافقة على التسجيل %[1]s الخاص بـ %[2]s.",
		SubjectKey(KeyRegistrationRejected):        "تم رفض التسجيل",
		KeyRegistrationRejected:                    "تم رفض التسجيل %[1]s الخاص بـ %[2]s.",
		SubjectKey(KeyRegistrationReturnedForEdit): "تمت إعادة التسجيل للتعديل",
		KeyRegistrationReturnedForEdit:             "تمت إعادة التسجيل %[1]s الخاص بـ %[2]s للتعديل.",
		SubjectKey(KeyRegistrationReopened):        "تمت إعادة فتح التسجيل",
		KeyRegistrationReopened:                    "عاد التسجيل %[1]s الخاص بـ %[2]s إلى المسودة.",
		SubjectKey(KeyRegistrationArchived):        "تمت أرشفة التسجيل",
		KeyRegistrationArchived:                    "تمت أرشفة التسجيل %[1]s الخاص بـ %[2]s.",
		SubjectKey(KeyRegistrationStatusChanged):   "تغيرت حالة التسجيل",
		KeyRegistrationStatusChanged:               "انتقل التسجيل %[1]s الخاص بـ %[2]s من %[3]s إلى %[4]s.",
	},
}
